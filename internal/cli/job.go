package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// JobStore — хранилище jobs, с которым работает CLI.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]*domain.Job, error)
}

// Announcer сообщает воркерам о новой job. nil — не сообщать.
type Announcer interface {
	PublishJobCreated(ctx context.Context, jobID uuid.UUID, taskType string) error
}

// Deps — ленивые зависимости команд, создаются после разбора флагов.
type Deps struct {
	Store     func(ctx context.Context) (JobStore, error)
	Announcer func(ctx context.Context) Announcer
	Output    func() *Output
}

var jobHeaders = []string{"ID", "TYPE", "STATUS", "RETRIES", "WORKER", "CREATED"}

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobCreateCmd(deps),
		newJobListCmd(deps),
		newJobShowCmd(deps),
	)

	return cmd
}

func newJobCreateCmd(deps Deps) *cobra.Command {
	var (
		taskType string
		vars     []string
		varsJSON string
		retries  int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			variables, err := parseVariables(varsJSON, vars)
			if err != nil {
				return err
			}

			store, err := deps.Store(ctx)
			if err != nil {
				return err
			}

			job := domain.NewJob(taskType, variables)
			job.Retries = retries
			if err := store.Create(ctx, job); err != nil {
				return err
			}

			out := deps.Output()
			if deps.Announcer != nil {
				if a := deps.Announcer(ctx); a != nil {
					if err := a.PublishJobCreated(ctx, job.ID, job.Type); err != nil {
						out.Error(fmt.Sprintf("announce job: %v", err))
					}
				}
			}

			out.Success(fmt.Sprintf("Job created: %s", job.ID))
			return out.Print(jobHeaders, [][]string{jobRow(job)}, job)
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "", "Task type (required)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Variable as key=value; value is parsed as JSON when possible (repeatable)")
	cmd.Flags().StringVar(&varsJSON, "vars-json", "", "Variables as a JSON object")
	cmd.Flags().IntVar(&retries, "retries", domain.DefaultRetries, "Number of attempts")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newJobListCmd(deps Deps) *cobra.Command {
	var (
		taskType string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := deps.Store(ctx)
			if err != nil {
				return err
			}

			filter := repo.JobFilter{Type: taskType, Limit: limit}
			if status != "" {
				filter.Status = domain.ParseJobStatus(strings.ToUpper(status))
			}

			jobs, err := store.List(ctx, filter)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, job := range jobs {
				rows[i] = jobRow(job)
			}
			return deps.Output().Print(jobHeaders, rows, jobs)
		},
	}

	cmd.Flags().StringVar(&taskType, "type", "", "Filter by task type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs")

	return cmd
}

func newJobShowCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			store, err := deps.Store(ctx)
			if err != nil {
				return err
			}

			job, err := store.GetByID(ctx, id)
			if err != nil {
				return err
			}

			out := deps.Output()
			if err := out.Print(jobHeaders, [][]string{jobRow(job)}, job); err != nil {
				return err
			}
			if out.jsonMode {
				return nil
			}

			vars, err := json.MarshalIndent(job.Variables, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out.w, "\nVariables:\n%s\n", vars)
			if job.ErrorMessage != "" {
				fmt.Fprintf(out.w, "\nError: %s %s\n", job.ErrorCode, job.ErrorMessage)
			}
			return nil
		},
	}
}

func jobRow(job *domain.Job) []string {
	return []string{
		job.ID.String(),
		job.Type,
		job.Status.String(),
		strconv.Itoa(job.Retries),
		job.Worker,
		job.CreatedAt.Format(time.RFC3339),
	}
}

// parseVariables собирает переменные из --vars-json и --var key=value.
// --var перекрывает значения из --vars-json.
func parseVariables(varsJSON string, pairs []string) (map[string]any, error) {
	variables := make(map[string]any)

	if varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &variables); err != nil {
			return nil, fmt.Errorf("parse --vars-json: %w", err)
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		variables[key] = value
	}

	return variables, nil
}
