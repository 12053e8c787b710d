package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// DefaultListLimit bounds ListJobs when no limit is given.
const DefaultListLimit = 100

// GormStore implements core.HistoryStore using GORM.
type GormStore struct {
	db *gorm.DB
}

var _ core.HistoryStore = (*GormStore)(nil)

// NewGormStore creates a new GORM-backed history store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying database handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.JobRecord{}, &core.TransitionRecord{})
}

// SaveJob inserts a job record or replaces the one with the same handle.
func (s *GormStore) SaveJob(ctx context.Context, rec *core.JobRecord) error {
	if rec.Handle == "" {
		rec.Handle = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = core.StatusCreated.String()
	}
	rec.LastError = security.SanitizeErrorMessage(rec.LastError)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "handle"}},
			DoUpdates: clause.AssignmentColumns([]string{"job_id", "type", "status", "cancelled", "last_error", "progress_cur", "progress_end", "updated_at", "concluded_at"}),
		}).
		Create(rec).Error
}

// RecordTransition stores a state change and updates the job's status.
func (s *GormStore) RecordTransition(ctx context.Context, tr *core.TransitionRecord) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tr).Error; err != nil {
			return err
		}
		return tx.Model(&core.JobRecord{}).
			Where("handle = ?", tr.Handle).
			Update("status", tr.ToState).Error
	})
}

// UpdateProgress stores the latest progress of a job.
func (s *GormStore) UpdateProgress(ctx context.Context, handle string, cur, end uint64) error {
	return s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Where("handle = ?", handle).
		Updates(map[string]any{
			"progress_cur": cur,
			"progress_end": end,
		}).Error
}

// Conclude records the outcome of a job.
// Error messages are sanitized before storage.
func (s *GormStore) Conclude(ctx context.Context, handle string, cancelled bool, errMsg string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Where("handle = ?", handle).
		Updates(map[string]any{
			"status":       core.StatusConcluded.String(),
			"cancelled":    cancelled,
			"last_error":   security.SanitizeErrorMessage(errMsg),
			"concluded_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by handle. It returns nil if there is none.
func (s *GormStore) GetJob(ctx context.Context, handle string) (*core.JobRecord, error) {
	var rec core.JobRecord
	err := s.db.WithContext(ctx).First(&rec, "handle = ?", handle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// GetJobByID retrieves the most recent job with the given ID.
func (s *GormStore) GetJobByID(ctx context.Context, jobID string) (*core.JobRecord, error) {
	var rec core.JobRecord
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// ListJobs returns the newest jobs, optionally filtered by status name.
func (s *GormStore) ListJobs(ctx context.Context, status string, limit int) ([]*core.JobRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var recs []*core.JobRecord
	err := q.Find(&recs).Error
	return recs, err
}

// Transitions returns the state changes of a job in order.
func (s *GormStore) Transitions(ctx context.Context, handle string) ([]core.TransitionRecord, error) {
	var trs []core.TransitionRecord
	err := s.db.WithContext(ctx).
		Where("handle = ?", handle).
		Order("at ASC").
		Find(&trs).Error
	return trs, err
}

// PruneConcluded deletes jobs concluded more than olderThan ago, with their
// transitions.
func (s *GormStore) PruneConcluded(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var handles []string
		if err := tx.Model(&core.JobRecord{}).
			Where("concluded_at IS NOT NULL AND concluded_at < ?", cutoff).
			Pluck("handle", &handles).Error; err != nil {
			return err
		}
		if len(handles) == 0 {
			return nil
		}
		if err := tx.Where("handle IN ?", handles).Delete(&core.TransitionRecord{}).Error; err != nil {
			return err
		}
		result := tx.Where("handle IN ?", handles).Delete(&core.JobRecord{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
