package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

type funcEvaluator func(ctx context.Context, caseID string) (entity.Report, error)

func (f funcEvaluator) Evaluate(ctx context.Context, caseID string) (entity.Report, error) {
	return f(ctx, caseID)
}

func waitFor(t *testing.T, r *Results, id string, want JobStatus) JobState {
	t.Helper()
	var st JobState
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = r.Get(id)
		return ok && st.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestEvaluationQueue_RunsJobs(t *testing.T) {
	eval := funcEvaluator(func(_ context.Context, caseID string) (entity.Report, error) {
		if caseID == "BAD" {
			return entity.Report{}, errors.New("store down")
		}
		return entity.Report{CaseID: caseID, Status: constants.RunCompleted}, nil
	})
	q := NewEvaluationQueue(eval, nil, WithWorkers(2))
	defer q.Shutdown(context.Background())

	ok, err := q.Submit(context.Background(), "CASE-1")
	require.NoError(t, err)
	bad, err := q.Submit(context.Background(), "BAD")
	require.NoError(t, err)
	assert.NotEqual(t, ok.ID, bad.ID)

	st := waitFor(t, q.Results(), ok.ID, JobDone)
	require.NotNil(t, st.Report)
	assert.Equal(t, "CASE-1", st.Report.CaseID)

	st = waitFor(t, q.Results(), bad.ID, JobFailed)
	assert.Equal(t, "store down", st.Error)
	assert.Nil(t, st.Report)
}

func TestEvaluationQueue_ShutdownDrainsAndRejects(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	eval := funcEvaluator(func(_ context.Context, caseID string) (entity.Report, error) {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		seen = append(seen, caseID)
		mu.Unlock()
		return entity.Report{CaseID: caseID}, nil
	})
	q := NewEvaluationQueue(eval, nil, WithWorkers(1), WithQueueSize(8))
	for _, id := range []string{"A", "B", "C"} {
		_, err := q.Submit(context.Background(), id)
		require.NoError(t, err)
	}
	q.Shutdown(context.Background())

	mu.Lock()
	assert.Equal(t, []string{"A", "B", "C"}, seen)
	mu.Unlock()

	_, err := q.Submit(context.Background(), "D")
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEvaluationQueue_BackpressureHonoursContext(t *testing.T) {
	release := make(chan struct{})
	eval := funcEvaluator(func(_ context.Context, caseID string) (entity.Report, error) {
		<-release
		return entity.Report{CaseID: caseID}, nil
	})
	q := NewEvaluationQueue(eval, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	_, err := q.Submit(context.Background(), "A")
	require.NoError(t, err)
	// wait until the worker holds A so the buffer is empty
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	_, err = q.Submit(context.Background(), "B")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	job, err := q.Submit(ctx, "C")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := q.Results().Get(job.ID)
	assert.False(t, ok)
}

func TestEvaluationQueue_ShutdownReleasesBlockedSubmit(t *testing.T) {
	release := make(chan struct{})
	eval := funcEvaluator(func(_ context.Context, caseID string) (entity.Report, error) {
		<-release
		return entity.Report{CaseID: caseID}, nil
	})
	q := NewEvaluationQueue(eval, nil, WithWorkers(1), WithQueueSize(1))

	_, err := q.Submit(context.Background(), "A")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	_, err = q.Submit(context.Background(), "B")
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		_, err := q.Submit(context.Background(), "C")
		blocked <- err
	}()
	// C has no deadline; only Shutdown can release it
	time.Sleep(20 * time.Millisecond)

	shutdown := make(chan struct{})
	go func() {
		q.Shutdown(context.Background())
		close(shutdown)
	}()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submit was not released by shutdown")
	}

	close(release)
	select {
	case <-shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not drain")
	}
}

func TestResults_EvictsOldestFinished(t *testing.T) {
	r := NewResults(2)
	for _, id := range []string{"1", "2", "3"} {
		r.queued(Job{ID: id})
		r.finish(id, &entity.Report{}, nil)
	}
	_, ok := r.Get("1")
	assert.False(t, ok)
	st, ok := r.Get("3")
	require.True(t, ok)
	assert.Equal(t, JobDone, st.Status)
}
