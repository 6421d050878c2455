// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI работает напрямую с хранилищем jobs (PostgreSQL) и позволяет
// ставить работу в очередь для воркеров, просматривать её состояние
// и применять миграции схемы.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor job list --json | jq .
//
// ## Commands
//
//   - job: create, list, show
//   - migrate: up, down
//
// Каждая группа создаётся через фабричную функцию (NewJobCmd, NewMigrateCmd),
// принимающую замыкания для ленивого создания зависимостей после
// парсинга PersistentFlags.
//
// После job create CLI публикует событие job.created в RabbitMQ,
// если брокер настроен: воркеры нужного типа просыпаются без ожидания
// poll interval.
package cli
