package core

import (
	"context"
	"time"
)

// HistoryStore defines the persistence layer for job history.
type HistoryStore interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Records
	SaveJob(ctx context.Context, rec *JobRecord) error
	RecordTransition(ctx context.Context, tr *TransitionRecord) error
	UpdateProgress(ctx context.Context, handle string, cur, end uint64) error
	Conclude(ctx context.Context, handle string, cancelled bool, errMsg string) error

	// Queries
	GetJob(ctx context.Context, handle string) (*JobRecord, error)
	GetJobByID(ctx context.Context, jobID string) (*JobRecord, error)
	ListJobs(ctx context.Context, status string, limit int) ([]*JobRecord, error)
	Transitions(ctx context.Context, handle string) ([]TransitionRecord, error)

	// Retention
	PruneConcluded(ctx context.Context, olderThan time.Duration) (int64, error)
}
