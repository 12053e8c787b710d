package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveJob_DefaultsAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &core.JobRecord{JobID: "backup0", Type: "backup"}
	require.NoError(t, s.SaveJob(ctx, rec))
	assert.Len(t, rec.Handle, 36)
	assert.Equal(t, "created", rec.Status)

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "backup0", got.JobID)
	assert.Equal(t, "backup", got.Type)
	assert.Nil(t, got.ConcludedAt)
}

func TestSaveJob_Upsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := newTestRecord("mirror0", "mirror")
	require.NoError(t, s.SaveJob(ctx, rec))

	rec.Status = "running"
	rec.ProgressEnd = 4096
	require.NoError(t, s.SaveJob(ctx, rec))

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, uint64(4096), got.ProgressEnd)

	all, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveJob_SanitizesError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := newTestRecord("job1", "backup")
	rec.LastError = "bad\x00thing"
	require.NoError(t, s.SaveJob(ctx, rec))

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "badthing", got.LastError)
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetJob(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetJobByID(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetJobByID_ReturnsNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := newTestRecord("nightly", "backup")
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.SaveJob(ctx, old))
	newer := newTestRecord("nightly", "backup")
	require.NoError(t, s.SaveJob(ctx, newer))

	got, err := s.GetJobByID(ctx, "nightly")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.Handle, got.Handle)
}

func TestRecordTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord("job1", "backup")
	require.NoError(t, s.SaveJob(ctx, rec))

	base := time.Now()
	steps := []core.Status{core.StatusCreated, core.StatusRunning, core.StatusWaiting, core.StatusPending}
	for i := 1; i < len(steps); i++ {
		require.NoError(t, s.RecordTransition(ctx, &core.TransitionRecord{
			Handle:    rec.Handle,
			JobID:     rec.JobID,
			FromState: steps[i-1].String(),
			ToState:   steps[i].String(),
			At:        base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	trs, err := s.Transitions(ctx, rec.Handle)
	require.NoError(t, err)
	require.Len(t, trs, 3)
	assert.Equal(t, "created", trs[0].FromState)
	assert.Equal(t, "running", trs[0].ToState)
	assert.Equal(t, "pending", trs[2].ToState)
	for _, tr := range trs {
		assert.Len(t, tr.ID, 36)
	}

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
}

func TestUpdateProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord("job1", "backup")
	require.NoError(t, s.SaveJob(ctx, rec))

	require.NoError(t, s.UpdateProgress(ctx, rec.Handle, 512, 1024))

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, uint64(512), got.ProgressCur)
	assert.Equal(t, uint64(1024), got.ProgressEnd)
}

func TestConclude(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord("job1", "backup")
	require.NoError(t, s.SaveJob(ctx, rec))

	long := strings.Repeat("x", 5000)
	require.NoError(t, s.Conclude(ctx, rec.Handle, false, long))

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "concluded", got.Status)
	assert.False(t, got.Cancelled)
	assert.NotNil(t, got.ConcludedAt)
	assert.Len(t, got.LastError, 4096)
	assert.True(t, strings.HasSuffix(got.LastError, "..."))

	assert.ErrorIs(t, s.Conclude(ctx, "missing", true, ""), core.ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		rec := newTestRecord("", "backup")
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if i%2 == 0 {
			rec.Status = "concluded"
		}
		require.NoError(t, s.SaveJob(ctx, rec))
	}

	all, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.True(t, all[0].CreatedAt.After(all[4].CreatedAt))

	concluded, err := s.ListJobs(ctx, "concluded", 0)
	require.NoError(t, err)
	assert.Len(t, concluded, 3)

	limited, err := s.ListJobs(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPruneConcluded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := newTestRecord("old", "backup")
	require.NoError(t, s.SaveJob(ctx, old))
	require.NoError(t, s.RecordTransition(ctx, &core.TransitionRecord{
		Handle: old.Handle, FromState: "created", ToState: "running",
	}))
	require.NoError(t, s.Conclude(ctx, old.Handle, false, ""))
	require.NoError(t, s.DB().Model(&core.JobRecord{}).
		Where("handle = ?", old.Handle).
		Update("concluded_at", time.Now().Add(-48*time.Hour)).Error)

	recent := newTestRecord("recent", "backup")
	require.NoError(t, s.SaveJob(ctx, recent))
	require.NoError(t, s.Conclude(ctx, recent.Handle, false, ""))

	running := newTestRecord("running", "mirror")
	require.NoError(t, s.SaveJob(ctx, running))

	n, err := s.PruneConcluded(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetJob(ctx, old.Handle)
	require.NoError(t, err)
	assert.Nil(t, got)
	trs, err := s.Transitions(ctx, old.Handle)
	require.NoError(t, err)
	assert.Empty(t, trs)

	n, err = s.PruneConcluded(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 6; i++ {
		typ := "backup"
		if i >= 4 {
			typ = "mirror"
		}
		require.NoError(t, s.SaveJob(ctx, newTestRecord("", typ)))
	}
	named := newTestRecord("nightly", "backup")
	require.NoError(t, s.SaveJob(ctx, named))

	recs, total, err := s.SearchJobs(ctx, Filter{Type: "backup", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, recs, 2)

	recs, total, err = s.SearchJobs(ctx, Filter{Type: "backup", Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, recs, 1)

	recs, total, err = s.SearchJobs(ctx, Filter{JobID: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, recs, 1)
	assert.Equal(t, named.Handle, recs[0].Handle)

	_, total, err = s.SearchJobs(ctx, Filter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	save := func(typ string, conclude bool, cancelled bool, errMsg string) {
		rec := newTestRecord("", typ)
		require.NoError(t, s.SaveJob(ctx, rec))
		if conclude {
			require.NoError(t, s.Conclude(ctx, rec.Handle, cancelled, errMsg))
		}
	}
	save("backup", true, false, "")
	save("backup", true, false, "")
	save("backup", true, false, "input/output error")
	save("backup", true, true, "")
	save("mirror", false, false, "")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	byType := make(map[string]*TypeStats)
	for _, st := range stats {
		byType[st.Type] = st
	}
	require.Contains(t, byType, "backup")
	assert.Equal(t, int64(2), byType["backup"].Succeeded)
	assert.Equal(t, int64(1), byType["backup"].Failed)
	assert.Equal(t, int64(1), byType["backup"].Cancelled)
	assert.Zero(t, byType["backup"].Active)
	require.Contains(t, byType, "mirror")
	assert.Equal(t, int64(1), byType["mirror"].Active)
}
