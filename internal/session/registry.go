// Package session hosts calculator sessions: an expiring registry, a busy
// gate per session and the HTTP API on top of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/storage"
)

var (
	ErrClosed   = errors.New("session registry closed")
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
	ErrLimited  = errors.New("too many new sessions")
)

// Entry is one hosted session. Its mutex is a busy gate: events are
// rejected, not queued, while another one is in flight.
type Entry struct {
	ID    string
	Store storage.Store

	gate     sync.Mutex
	session  *calculator.Session
	expireAt atomic.Int64
}

// Do runs fn with exclusive access to the session. It fails with
// calculator.ErrBusy when another event holds the session.
func (e *Entry) Do(fn func(*calculator.Session) error) error {
	if !e.gate.TryLock() {
		busyRejections.Inc()
		return calculator.ErrBusy
	}
	defer e.gate.Unlock()
	return fn(e.session)
}

// Config configures a Registry.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	// Store receives each session's history under its own scope. Nil keeps
	// nothing.
	Store  storage.Store
	Power  calculator.PowerService
	// CreateRate caps new sessions per second, with bursts of CreateBurst.
	// Zero means unlimited.
	CreateRate  float64
	CreateBurst int
	Logger      *zap.Logger
	Now         func() time.Time
}

// Registry holds sessions until they sit idle longer than the TTL.
type Registry struct {
	mu          sync.RWMutex
	cleanerOnce sync.Once
	cleanerCh   chan struct{}
	items       map[string]*Entry
	inShutdown  atomic.Bool

	ttl     time.Duration
	store   storage.Store
	power   calculator.PowerService
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry starts a janitor that evicts expired sessions every
// CleanupInterval until Shutdown or Close.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := rate.Inf
	if cfg.CreateRate > 0 {
		limit = rate.Limit(cfg.CreateRate)
	}
	if cfg.CreateBurst < 1 {
		cfg.CreateBurst = 1
	}

	r := &Registry{
		cleanerCh: make(chan struct{}),
		items:     make(map[string]*Entry),
		ttl:       cfg.TTL,
		store:     cfg.Store,
		power:     cfg.Power,
		limiter:   rate.NewLimiter(limit, cfg.CreateBurst),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.cleanerCh:
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
	return r
}

// Create opens a new session. An empty id gets a random UUID. Persisted
// history for the id is loaded into the new session.
func (r *Registry) Create(id string, opts ...calculator.Option) (*Entry, error) {
	if r.inShutdown.Load() {
		return nil, ErrClosed
	}
	if !r.limiter.AllowN(r.now(), 1) {
		return nil, ErrLimited
	}
	if id == "" {
		id = uuid.NewString()
	}

	entry := &Entry{ID: id}
	logger := r.logger.With(zap.String("session_id", id))

	base := []calculator.Option{calculator.WithLogger(logger)}
	if r.power != nil {
		base = append(base, calculator.WithPowerService(r.power))
	}
	if r.store != nil {
		entry.Store = storage.Scoped(r.store, id)

		history, err := storage.LoadHistory(entry.Store)
		if err != nil {
			if !errors.Is(err, storage.ErrInvalidKey) {
				logger.Warn("discarding unreadable history", zap.Error(err))
			} else {
				return nil, fmt.Errorf("session %q: %w", id, err)
			}
		}
		base = append(base,
			calculator.WithHistory(history),
			calculator.WithHooks(calculator.Hooks{
				OnHistory: func(entries []calculator.HistoryEntry) {
					if len(entries) == 0 {
						if err := storage.ClearHistory(entry.Store); err != nil {
							logger.Error("clearing history failed", zap.Error(err))
						}
						return
					}
					if err := storage.SaveHistory(entry.Store, entries); err != nil {
						logger.Error("saving history failed", zap.Error(err))
					}
				},
				OnBusy: func(busy bool) {
					logger.Debug("session busy", zap.Bool("busy", busy))
				},
			}),
		)
	}
	entry.session = calculator.NewSession(append(base, opts...)...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	entry.expireAt.Store(r.now().Add(r.ttl).UnixNano())
	r.items[id] = entry

	activeSessions.Inc()
	sessionsCreated.Inc()
	logger.Info("session created")
	return entry, nil
}

// Get returns a live session and extends its lifetime.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.items[id]
	now := r.now()
	if !ok || now.UnixNano() > entry.expireAt.Load() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry.expireAt.Store(now.Add(r.ttl).UnixNano())
	return entry, nil
}

// Delete drops a session. Its persisted history stays in the store.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.items, id)
	activeSessions.Dec()
	return nil
}

// Len counts the sessions held, expired or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Sweep evicts every expired session.
func (r *Registry) Sweep() {
	now := r.now().UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.items {
		if now > entry.expireAt.Load() {
			delete(r.items, id)
			activeSessions.Dec()
			sessionsExpired.Inc()
			r.logger.Debug("session expired", zap.String("session_id", id))
		}
	}
}

const shutdownIntervalMax = 500 * time.Millisecond

// Shutdown stops accepting new sessions and waits, polling with backoff,
// until every existing one has expired or ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.inShutdown.Store(true)
	r.closeCleaner()

	intervalBase := time.Millisecond
	nextInterval := func() time.Duration {
		interval := intervalBase + time.Duration(rand.Int63n(int64(intervalBase/10)+1))

		intervalBase *= 2
		if intervalBase > shutdownIntervalMax {
			intervalBase = shutdownIntervalMax
		}
		return interval
	}

	timer := time.NewTimer(nextInterval())
	defer timer.Stop()
	for {
		r.Sweep()
		if r.IsEmpty() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(nextInterval())
		}
	}
}

// Close drops every session immediately.
func (r *Registry) Close() error {
	if r.inShutdown.Swap(true) {
		return ErrClosed
	}
	r.closeCleaner()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.items {
		delete(r.items, id)
		activeSessions.Dec()
	}
	return nil
}

func (r *Registry) closeCleaner() {
	r.cleanerOnce.Do(func() {
		close(r.cleanerCh)
	})
}
