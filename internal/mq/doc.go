// Package mq — RabbitMQ-инфраструктура Conveyor.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — exchanges, очереди, привязки
//   - publisher.go  — публикация job.created и событий результата
//   - consumer.go   — потребление с переподключением, WakeHandler
//
// RabbitMQ не является источником jobs: их выдаёт адаптер (Postgres или память).
// Сообщение created.<type> только будит простаивающий dispatch loop раньше
// PollInterval. Без RabbitMQ воркер работает в режиме чистого polling.
package mq
