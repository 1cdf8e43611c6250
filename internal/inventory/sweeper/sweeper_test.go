package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

type blockingCleaner struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	result  int
	err     error
}

func newBlockingCleaner() *blockingCleaner {
	return &blockingCleaner{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (c *blockingCleaner) CleanupExpiredReservations(ctx context.Context, batchSize int) (int, error) {
	c.calls.Add(1)
	c.started <- struct{}{}
	<-c.release
	return c.result, c.err
}

type countingCleaner struct {
	calls atomic.Int32
	batch atomic.Int32
}

func (c *countingCleaner) CleanupExpiredReservations(ctx context.Context, batchSize int) (int, error) {
	c.calls.Add(1)
	c.batch.Store(int32(batchSize))
	return 1, nil
}

func TestSweeper_TicksDuringSweepAreSkipped(t *testing.T) {
	cleaner := newBlockingCleaner()
	s := New(cleaner, logger.NewNop(), metrics.NewNop(), Config{Interval: time.Hour, BatchSize: 10})
	ctx := context.Background()

	s.tick(ctx)
	<-cleaner.started

	s.tick(ctx)
	s.tick(ctx)
	assert.Equal(t, int64(2), s.Skipped())

	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(cleaner.release)
	s.sweeps.Wait()
	assert.Equal(t, int32(1), cleaner.calls.Load())

	cleaner.result = 3
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSweeper_StartStop(t *testing.T) {
	cleaner := &countingCleaner{}
	s := New(cleaner, logger.NewNop(), metrics.NewNop(), Config{Interval: 5 * time.Millisecond, BatchSize: 25})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Equal(t, int32(25), cleaner.batch.Load())

	calls := cleaner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, cleaner.calls.Load(), "no sweeps after stop")

	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestSweeper_StopWaitsForInFlightSweep(t *testing.T) {
	cleaner := newBlockingCleaner()
	s := New(cleaner, logger.NewNop(), nil, Config{Interval: time.Millisecond})
	require.NoError(t, s.Start(context.Background()))
	<-cleaner.started

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a sweep was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(cleaner.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return after the sweep finished")
	}
}

func TestSweeper_RunOnceReportsFailure(t *testing.T) {
	cleaner := newBlockingCleaner()
	cleaner.err = errors.New("store unavailable")
	close(cleaner.release)

	s := New(cleaner, logger.NewNop(), metrics.NewNop(), DefaultConfig())
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 200, s.batchSize)
}
