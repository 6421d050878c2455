package cli

import (
	"github.com/spf13/cobra"
)

// Migrator применяет миграции схемы БД.
type Migrator struct {
	Up   func() error
	Down func() error
}

// NewMigrateCmd создаёт группу команд для миграций схемы jobs.
func NewMigrateCmd(migratorFn func() Migrator, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := migratorFn().Up(); err != nil {
					return err
				}
				outputFn().Success("Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := migratorFn().Down(); err != nil {
					return err
				}
				outputFn().Success("Migrations rolled back")
				return nil
			},
		},
	)

	return cmd
}
