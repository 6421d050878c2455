package cli

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

type announcement struct {
	id       uuid.UUID
	taskType string
}

type stubAnnouncer struct {
	mu   sync.Mutex
	sent []announcement
	err  error
}

func (a *stubAnnouncer) PublishJobCreated(_ context.Context, id uuid.UUID, taskType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, announcement{id: id, taskType: taskType})
	return a.err
}

type testEnv struct {
	store     *repo.MemoryJobRepo
	announcer *stubAnnouncer
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
}

func newTestEnv() *testEnv {
	return &testEnv{
		store:     repo.NewMemoryJobRepo(),
		announcer: &stubAnnouncer{},
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
	}
}

func (e *testEnv) deps(jsonMode bool) Deps {
	return Deps{
		Store: func(context.Context) (JobStore, error) { return e.store, nil },
		Announcer: func(context.Context) Announcer {
			return e.announcer
		},
		Output: func() *Output { return NewOutputTo(e.stdout, e.stderr, jsonMode) },
	}
}

func run(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(context.Background())
}

func seed(e *testEnv, jobs ...*domain.Job) {
	for _, job := range jobs {
		if err := e.store.Create(context.Background(), job); err != nil {
			panic(err)
		}
	}
}
