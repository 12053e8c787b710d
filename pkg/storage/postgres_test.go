package storage

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// skipIfNotPostgres skips the test when TEST_DATABASE_URL is not set.
func skipIfNotPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL-specific test")
	}
}

func TestSaveJob_PostgreSQL_ConcurrentUpserts(t *testing.T) {
	skipIfNotPostgres(t)

	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord("job1", "backup")
	require.NoError(t, s.SaveJob(ctx, rec))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *rec
			cp.ProgressCur = uint64(i)
			errs <- s.SaveJob(ctx, &cp)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	all, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordTransition_PostgreSQL_RollsBackOnDuplicate(t *testing.T) {
	skipIfNotPostgres(t)

	ctx := context.Background()
	s := newTestStore(t)
	rec := newTestRecord("job1", "backup")
	require.NoError(t, s.SaveJob(ctx, rec))

	tr := &core.TransitionRecord{Handle: rec.Handle, FromState: "created", ToState: "running"}
	require.NoError(t, s.RecordTransition(ctx, tr))

	// Same primary key again: the insert fails and the status update must not apply.
	dup := *tr
	dup.ToState = "paused"
	require.Error(t, s.RecordTransition(ctx, &dup))

	got, err := s.GetJob(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
}
