package jobctx

import (
	"context"
	"testing"
	"time"

	intctx "github.com/jdziat/simple-block-jobs/pkg/internal/context"
	"github.com/jdziat/simple-block-jobs/pkg/job"
)

func TestJobFromContext(t *testing.T) {
	t.Run("returns the running job", func(t *testing.T) {
		// Arrange
		reg := job.NewRegistry()
		seen := make(chan *job.Job, 1)
		ids := make(chan string, 1)
		j, err := reg.Create("copy-1", job.DriverFunc(func(ctx context.Context, _ *job.Job) error {
			seen <- JobFromContext(ctx)
			ids <- JobIDFromContext(ctx)
			ReportProgress(ctx, 7)
			PausePoint(ctx)
			return nil
		}))
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		// Act
		if err := j.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}

		// Assert
		select {
		case got := <-seen:
			if got != j {
				t.Errorf("expected job %v, got %v", j, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("driver did not run")
		}
		if id := <-ids; id != "copy-1" {
			t.Errorf("expected job ID %q, got %q", "copy-1", id)
		}
		if err := j.FinishSync(); err != nil {
			t.Fatalf("finish: %v", err)
		}
		if cur, _ := j.Progress(); cur != 7 {
			t.Errorf("expected progress 7, got %d", cur)
		}
	})

	t.Run("returns nil when not set in context", func(t *testing.T) {
		// Arrange
		ctx := context.Background()

		// Act
		result := JobFromContext(ctx)

		// Assert
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
		if id := JobIDFromContext(ctx); id != "" {
			t.Errorf("expected empty ID, got %q", id)
		}
		if IsCancelled(ctx) {
			t.Error("expected not cancelled outside a job")
		}
	})

	t.Run("returns nil when job is not set", func(t *testing.T) {
		// Arrange
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{JobID: "orphan"})

		// Act
		result := JobFromContext(ctx)

		// Assert
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
		if id := JobIDFromContext(ctx); id != "orphan" {
			t.Errorf("expected %q, got %q", "orphan", id)
		}
	})
}

func TestLogger(t *testing.T) {
	if Logger(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
	if HandleFromContext(context.Background()) != "" {
		t.Error("expected empty handle")
	}
}
