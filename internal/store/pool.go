package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"

	"github.com/Kinis2025/sebelo/pkg/metrics"
)

// State is the lifecycle state of a Pool.
type State int32

const (
	StateOpen State = iota
	StateHealthy
	StateReconnecting
	StateClosed
)

var stateNames = map[State]string{
	StateOpen:         "open",
	StateHealthy:      "healthy",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	// Delay before the first reconnection attempt.
	initialBackoff = 500 * time.Millisecond

	// Upper bound between reconnection attempts.
	maxBackoff = 30 * time.Second

	// Interval between health pings while healthy.
	defaultHealthInterval = 10 * time.Second

	// Bound on a single health ping.
	pingTimeout = 3 * time.Second
)

var (
	// ErrUnavailable is returned while the pool is not healthy. It is retryable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("not found")

	errAlreadyStarted = errors.New("pool already started")
)

// PoolConfig holds the configuration for a Pool.
type PoolConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.StoreMetrics // Optional
	Driver         string
	DSN            string
	HealthInterval time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Pool owns the database handle. A supervisor goroutine keeps it connected
// and callers get ErrUnavailable instead of waiting while it reconnects.
type Pool struct {
	logger         *slog.Logger
	metrics        *metrics.StoreMetrics
	db             *gorm.DB
	wake           chan struct{}
	cancel         context.CancelFunc
	driver         string
	dsn            string
	wg             sync.WaitGroup
	healthInterval time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	mu             sync.RWMutex
	state          State
	started        bool
}

// NewPool creates a Pool. No connection is made until Start.
func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DSN == "" {
		return nil, errors.New("dsn cannot be empty")
	}

	if _, err := dialector(cfg.Driver, cfg.DSN); err != nil {
		return nil, err
	}

	p := &Pool{
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		driver:         cfg.Driver,
		dsn:            cfg.DSN,
		wake:           make(chan struct{}, 1),
		healthInterval: cfg.HealthInterval,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		state:          StateOpen,
	}
	if p.healthInterval <= 0 {
		p.healthInterval = defaultHealthInterval
	}
	if p.initialBackoff <= 0 {
		p.initialBackoff = initialBackoff
	}
	if p.maxBackoff <= 0 {
		p.maxBackoff = maxBackoff
	}
	p.publishState(StateOpen)

	return p, nil
}

// Start launches the supervisor. It returns immediately; use WaitHealthy
// to block until the first connection is established.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return ErrUnavailable
	}
	if p.started {
		return errAlreadyStarted
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.supervise(ctx)

	return nil
}

// WaitHealthy blocks until the pool is healthy, closed, or ctx is done.
func (p *Pool) WaitHealthy(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		switch p.State() {
		case StateHealthy:
			return nil
		case StateClosed:
			return ErrUnavailable
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to wait for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// DB returns the live handle, or ErrUnavailable when the pool is not healthy.
func (p *Pool) DB() (*gorm.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state != StateHealthy || p.db == nil {
		return nil, ErrUnavailable
	}
	return p.db, nil
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ReportFailure asks the supervisor for an immediate health check.
// It never blocks.
func (p *Pool) ReportFailure(err error) {
	p.logger.Debug("store operation failed, checking connection", "error", err)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close stops the supervisor and closes the connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	db := p.db
	p.db = nil
	p.state = StateClosed
	p.mu.Unlock()
	p.publishState(StateClosed)

	p.logger.Info("closing database connection")
	return closeDB(db)
}

// supervise alternates between connecting and watching until ctx is done.
func (p *Pool) supervise(ctx context.Context) {
	defer p.wg.Done()

	for {
		if err := p.connect(ctx); err != nil {
			return
		}
		if !p.watch(ctx) {
			return
		}

		p.logger.Warn("database connection lost, reconnecting")
		p.setState(StateReconnecting)

		p.mu.Lock()
		stale := p.db
		p.db = nil
		p.mu.Unlock()
		if err := closeDB(stale); err != nil {
			p.logger.Debug("failed to close stale connection", "error", err)
		}
	}
}

// connect retries with exponential backoff until a connection is healthy.
// It only returns an error when ctx is done.
func (p *Pool) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		if p.metrics != nil {
			p.metrics.ReconnectAttempts.Inc()
		}

		p.logger.Info("connecting to database", "driver", p.driver, "attempt", attempt)
		db, err := openDB(p.driver, p.dsn, p.logger)
		if err != nil {
			p.logger.Error("failed to connect. Retrying...", "error", err)
			p.setState(StateReconnecting)
			return err
		}

		p.mu.Lock()
		p.db = db
		p.mu.Unlock()
		p.setState(StateHealthy)
		p.logger.Info("database connection established")
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// watch pings the database until it fails (true) or ctx is done (false).
func (p *Pool) watch(ctx context.Context) bool {
	ticker := time.NewTicker(p.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		case <-p.wake:
		}

		if err := p.ping(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Error("database health check failed", "error", err)
			return true
		}
	}
}

func (p *Pool) ping(ctx context.Context) error {
	p.mu.RLock()
	db := p.db
	p.mu.RUnlock()
	if db == nil {
		return ErrUnavailable
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (p *Pool) setState(s State) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.mu.Unlock()
	p.publishState(s)
}

func (p *Pool) publishState(s State) {
	if p.metrics == nil {
		return
	}
	for state, name := range stateNames {
		v := 0.0
		if state == s {
			v = 1
		}
		p.metrics.PoolState.WithLabelValues(name).Set(v)
	}
}

// run executes fn against the live handle and records the outcome.
func (p *Pool) run(ctx context.Context, operation, table string, fn func(db *gorm.DB) error) error {
	start := time.Now()

	db, err := p.DB()
	if err != nil {
		p.observe(operation, table, "unavailable", start)
		return err
	}

	err = fn(db.WithContext(ctx))
	switch {
	case err == nil:
		p.observe(operation, table, "success", start)
	case errors.Is(err, gorm.ErrRecordNotFound):
		p.observe(operation, table, "success", start)
	default:
		p.observe(operation, table, "error", start)
		if ctx.Err() == nil {
			p.ReportFailure(err)
		}
	}

	return err
}

func (p *Pool) observe(operation, table, status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.OperationsTotal.WithLabelValues(operation, table, status).Inc()
	p.metrics.OperationDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
