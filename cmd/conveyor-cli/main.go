// Conveyor CLI — инструмент командной строки для постановки jobs
// в очередь и просмотра их состояния.
//
// Использование:
//
//	conveyor [--db-url URL] [--rabbitmq-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job      Управление jobs
//	migrate  Миграции схемы БД
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	var jsonOutput, verbose bool
	var pool *pgxpool.Pool
	var mqConn *mq.Connection

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — job queue for Conveyor workers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "db-url", cfg.DatabaseURL, "PostgreSQL URL")
	rootCmd.PersistentFlags().StringVar(&cfg.RabbitMQURL, "rabbitmq-url", cfg.RabbitMQURL, "RabbitMQ URL (empty: do not announce new jobs)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details to stderr")

	logger := func() *slog.Logger {
		if verbose {
			return telemetry.NewLogger(os.Stderr, "debug", "text")
		}
		return telemetry.NewLogger(io.Discard, cfg.LogLevel, "text")
	}

	deps := cli.Deps{
		Store: func(ctx context.Context) (cli.JobStore, error) {
			if pool == nil {
				p, err := repo.NewPool(ctx, cfg.DatabaseURL, 2)
				if err != nil {
					return nil, fmt.Errorf("connect to database: %w", err)
				}
				pool = p
			}
			return repo.NewJobRepo(pool), nil
		},
		Announcer: func(ctx context.Context) cli.Announcer {
			if cfg.RabbitMQURL == "" {
				return nil
			}
			conn, err := mq.Dial(cfg.RabbitMQURL, logger())
			if err != nil {
				fmt.Fprintln(os.Stderr, "Warning: RabbitMQ not available, workers will pick the job up on next poll")
				return nil
			}
			mqConn = conn
			if err := mq.SetupTopology(ctx, conn); err != nil {
				fmt.Fprintln(os.Stderr, "Warning: failed to setup topology:", err)
			}
			return mq.NewPublisher(conn, logger())
		},
		Output: func() *cli.Output { return cli.NewOutput(jsonOutput) },
	}

	migratorFn := func() cli.Migrator {
		return cli.Migrator{
			Up:   func() error { return repo.MigrateUp(cfg.DatabaseURL) },
			Down: func() error { return repo.MigrateDown(cfg.DatabaseURL) },
		}
	}

	rootCmd.AddCommand(
		cli.NewJobCmd(deps),
		cli.NewMigrateCmd(migratorFn, deps.Output),
	)

	err = rootCmd.Execute()

	if mqConn != nil {
		_ = mqConn.Close()
	}
	if pool != nil {
		pool.Close()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
