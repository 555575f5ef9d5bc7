package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	cfg.CleanupInterval = time.Hour
	cfg.Now = clock.Now

	r := NewRegistry(cfg)
	t.Cleanup(func() { _ = r.Close() })
	return r, clock
}

func press(t *testing.T, e *Entry, keys ...string) {
	t.Helper()
	err := e.Do(func(s *calculator.Session) error {
		return s.PressAll(context.Background(), keys)
	})
	if err != nil {
		t.Fatalf("pressing %v: %v", keys, err)
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})

	e, err := r.Create("")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := r.Get(e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != e {
		t.Fatal("expected the same entry back")
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Create(e.ID); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestRegistrySessionsAreIsolated(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})

	a, _ := r.Create("a")
	b, _ := r.Create("b")
	press(t, a, "7", "+", "1", "=")

	var display string
	_ = b.Do(func(s *calculator.Session) error {
		display = s.View().Display
		return nil
	})
	if display != "0" {
		t.Fatalf("expected untouched session to show 0, got %q", display)
	}
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	r, clock := newTestRegistry(t, Config{TTL: time.Minute})
	before := promtest.ToFloat64(sessionsExpired)

	idle, _ := r.Create("idle")
	active, _ := r.Create("active")

	clock.Advance(40 * time.Second)
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	clock.Advance(40 * time.Second)

	if _, err := r.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected idle session to be expired, got %v", err)
	}

	r.Sweep()
	if r.Len() != 1 {
		t.Fatalf("expected 1 session after sweep, got %d", r.Len())
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("expected active session to survive: %v", err)
	}
	if got := promtest.ToFloat64(sessionsExpired) - before; got != 1 {
		t.Fatalf("expected 1 expiry counted, got %v", got)
	}
}

func TestRegistryLimitsCreation(t *testing.T) {
	r, clock := newTestRegistry(t, Config{CreateRate: 1, CreateBurst: 2})

	for i := 0; i < 2; i++ {
		if _, err := r.Create(""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := r.Create(""); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited past the burst, got %v", err)
	}

	clock.Advance(time.Second)
	if _, err := r.Create(""); err != nil {
		t.Fatalf("expected a token after one second: %v", err)
	}
}

func TestRegistryDelete(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	e, _ := r.Create("")

	if err := r.Delete(e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.Delete(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryPersistsHistoryPerSession(t *testing.T) {
	store := storage.NewMemoryStore()
	r, _ := newTestRegistry(t, Config{Store: store})

	e, _ := r.Create("alice")
	press(t, e, "2", "+", "3", "=")

	saved, err := storage.LoadHistory(storage.Scoped(store, "alice"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(saved) != 1 || saved[0].Result != 5 {
		t.Fatalf("expected saved entry with result 5, got %+v", saved)
	}

	if err := r.Delete("alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again, err := r.Create("alice")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}

	var history []calculator.HistoryEntry
	_ = again.Do(func(s *calculator.Session) error {
		history = s.History()
		return nil
	})
	if len(history) != 1 || history[0].Result != 5 {
		t.Fatalf("expected history to be reloaded, got %+v", history)
	}

	bob, _ := r.Create("bob")
	_ = bob.Do(func(s *calculator.Session) error {
		history = s.History()
		return nil
	})
	if len(history) != 0 {
		t.Fatalf("expected empty history for another session, got %+v", history)
	}
}

func TestRegistryClearHistoryRemovesStoredKey(t *testing.T) {
	store := storage.NewMemoryStore()
	r, _ := newTestRegistry(t, Config{Store: store})

	e, _ := r.Create("carol")
	press(t, e, "1", "+", "1", "=")

	scoped := storage.Scoped(store, "carol")
	if _, err := scoped.Get(storage.HistoryKey); err != nil {
		t.Fatalf("expected stored history: %v", err)
	}

	if err := e.Do(func(s *calculator.Session) error { return s.ClearHistory() }); err != nil {
		t.Fatalf("clear history: %v", err)
	}
	if _, err := scoped.Get(storage.HistoryKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected history key to be removed, got %v", err)
	}
}

func TestRegistryRejectsInvalidIDWithStore(t *testing.T) {
	r, _ := newTestRegistry(t, Config{Store: storage.NewMemoryStore()})

	if _, err := r.Create("../escape"); !errors.Is(err, storage.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

type blockingPower struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPower) Power(ctx context.Context, base, exponent float64) (float64, error) {
	close(p.started)
	<-p.release
	return 8, nil
}

func TestEntryBusyGateRejectsConcurrentEvents(t *testing.T) {
	power := &blockingPower{started: make(chan struct{}), release: make(chan struct{})}
	r, _ := newTestRegistry(t, Config{Power: power})
	e, _ := r.Create("")
	press(t, e, "2", "^", "3")

	before := promtest.ToFloat64(busyRejections)
	done := make(chan error, 1)
	go func() {
		done <- e.Do(func(s *calculator.Session) error {
			return s.Equals(context.Background())
		})
	}()

	<-power.started
	err := e.Do(func(s *calculator.Session) error {
		return s.Digit('1')
	})
	if !errors.Is(err, calculator.ErrBusy) {
		t.Fatalf("expected ErrBusy while power request is pending, got %v", err)
	}
	if got := promtest.ToFloat64(busyRejections) - before; got != 1 {
		t.Fatalf("expected 1 busy rejection counted, got %v", got)
	}

	close(power.release)
	if err := <-done; err != nil {
		t.Fatalf("equals: %v", err)
	}

	var display string
	_ = e.Do(func(s *calculator.Session) error {
		display = s.View().Display
		return nil
	})
	if display != "8" {
		t.Fatalf("expected 8, got %q", display)
	}
}

func TestRegistryShutdownWaitsForExpiry(t *testing.T) {
	r, clock := newTestRegistry(t, Config{TTL: time.Minute})
	if _, err := r.Create(""); err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, err := r.Create(""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after shutdown, got %v", err)
	}

	clock.Advance(2 * time.Minute)
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected clean shutdown once sessions expired, got %v", err)
	}
}

func TestRegistryClose(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	_, _ = r.Create("")

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !r.IsEmpty() {
		t.Fatal("expected no sessions after close")
	}
	if err := r.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on second close, got %v", err)
	}
}
