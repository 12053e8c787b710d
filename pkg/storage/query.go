package storage

import (
	"context"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// Filter selects job records.
type Filter struct {
	Status string
	Type   string
	JobID  string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// TypeStats counts jobs of one type by outcome.
type TypeStats struct {
	Type      string
	Active    int64
	Succeeded int64
	Failed    int64
	Cancelled int64
}

// Stats returns per-type job counts.
func (s *GormStore) Stats(ctx context.Context) ([]*TypeStats, error) {
	type row struct {
		Type      string
		Status    string
		Cancelled bool
		Failed    bool
		Count     int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.JobRecord{}).
		Select("type, status, cancelled, last_error <> '' as failed, count(*) as count").
		Group("type, status, cancelled, last_error <> ''").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*TypeStats)
	var out []*TypeStats
	for _, r := range rows {
		ts, ok := byType[r.Type]
		if !ok {
			ts = &TypeStats{Type: r.Type}
			byType[r.Type] = ts
			out = append(out, ts)
		}
		switch {
		case r.Status != core.StatusConcluded.String() && r.Status != core.StatusNull.String():
			ts.Active += r.Count
		case r.Cancelled:
			ts.Cancelled += r.Count
		case r.Failed:
			ts.Failed += r.Count
		default:
			ts.Succeeded += r.Count
		}
	}
	return out, nil
}

// SearchJobs returns jobs matching the filter with the total match count.
func (s *GormStore) SearchJobs(ctx context.Context, filter Filter) ([]*core.JobRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&core.JobRecord{})

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.JobID != "" {
		q = q.Where("job_id = ?", filter.JobID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var recs []*core.JobRecord
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&recs).Error
	return recs, total, err
}
