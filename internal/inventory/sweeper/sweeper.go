package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

var (
	ErrAlreadyRunning = errors.New("sweeper already running")
	ErrNotRunning     = errors.New("sweeper not running")
	// ErrSweepInProgress is returned by RunOnce while another sweep is running.
	ErrSweepInProgress = errors.New("sweep already in progress")
)

// Cleaner releases expired reservations in batches.
type Cleaner interface {
	CleanupExpiredReservations(ctx context.Context, batchSize int) (int, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		BatchSize: 200,
	}
}

// Sweeper periodically reclaims stock held by expired reservations. At most
// one sweep runs at a time; ticks that arrive during a sweep are dropped.
type Sweeper struct {
	cleaner   Cleaner
	logger    logger.ZapLogger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	inFlight atomic.Bool
	sweeps   sync.WaitGroup
	skipped  atomic.Int64
}

func New(cleaner Cleaner, log logger.ZapLogger, m *metrics.Metrics, cfg Config) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Sweeper{
		cleaner:   cleaner,
		logger:    log,
		metrics:   m,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})

	s.logger.Info("starting expiration sweeper",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
	)
	go s.run(ctx, s.stopCh, s.stoppedCh)
	return nil
}

// Stop ends the ticker and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	stopCh, stoppedCh := s.stopCh, s.stoppedCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	s.logger.Info("expiration sweeper stopped", zap.Int64("skipped_ticks", s.skipped.Load()))
	return nil
}

func (s *Sweeper) run(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)
	defer s.sweeps.Wait()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick starts a sweep in the background unless one is already running.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.metrics.SweepRuns.WithLabelValues("skipped").Inc()
		s.logger.Debug("previous sweep still running, skipping tick")
		return
	}

	s.sweeps.Add(1)
	go func() {
		defer s.sweeps.Done()
		defer s.inFlight.Store(false)
		_, _ = s.sweep(ctx)
	}()
}

// RunOnce sweeps synchronously. It fails with ErrSweepInProgress instead of
// queueing behind a running sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return 0, ErrSweepInProgress
	}
	defer s.inFlight.Store(false)
	return s.sweep(ctx)
}

// Skipped is the number of ticks dropped because a sweep was in progress.
func (s *Sweeper) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	start := time.Now()
	released, err := s.cleaner.CleanupExpiredReservations(ctx, s.batchSize)
	s.metrics.SweepDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("failed").Inc()
		s.logger.Error("expiration sweep failed", zap.Error(err))
		return released, err
	}

	s.metrics.SweepRuns.WithLabelValues("completed").Inc()
	if released > 0 {
		s.logger.Info("released expired reservations", zap.Int("count", released))
	} else {
		s.logger.Debug("no expired reservations")
	}
	return released, nil
}
