package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/bnema/editor-relay/internal/ports"
)

const (
	DefaultWaitTimeout   = 25 * time.Second
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultMaxIDAttempts = 16

	maxActorAttempts = 3
)

var ErrRelayClosed = errors.New("relay is shutting down")

type Config struct {
	WaitTimeout   time.Duration
	IdleTimeout   time.Duration
	MaxIDAttempts int
	NewID         func() domain.SessionID
}

func (c *Config) applyDefaults() {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxIDAttempts <= 0 {
		c.MaxIDAttempts = DefaultMaxIDAttempts
	}
	if c.NewID == nil {
		c.NewID = domain.NewSessionID
	}
}

// Relay maps session ids to their actors. It holds no session state itself.
type Relay struct {
	store     ports.SessionStore
	clock     ports.Clock
	logger    *slog.Logger
	cfg       Config
	startedAt time.Time

	mu     sync.Mutex
	actors map[domain.SessionID]*actor
	closed bool
}

func NewRelay(store ports.SessionStore, clock ports.Clock, logger *slog.Logger, cfg Config) *Relay {
	if store == nil {
		store = ports.NopSessionStore{}
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.applyDefaults()

	return &Relay{
		store:     store,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		startedAt: clock.Now(),
		actors:    map[domain.SessionID]*actor{},
	}
}

func (r *Relay) WaitTimeout() time.Duration {
	return r.cfg.WaitTimeout
}

// CreateSession allocates a fresh id, regenerating on collision with a live or
// stored session, and initializes it with content.
func (r *Relay) CreateSession(ctx context.Context, content string) (domain.SessionID, error) {
	for attempt := 0; attempt < r.cfg.MaxIDAttempts; attempt++ {
		id := r.cfg.NewID()
		err := r.withActor(ctx, id, func(a *actor) (bool, error) {
			return a.create(ctx, content, true)
		})
		if errors.Is(err, errSessionTaken) {
			r.logger.Debug("session id collision, regenerating", "session", string(id), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create session %s: %w", id, err)
		}

		r.logger.Info("session created", "session", string(id))
		return id, nil
	}

	return "", domain.ErrIDSpaceExhausted
}

func (r *Relay) Fetch(ctx context.Context, id domain.SessionID) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSessionID, id)
	}

	var content string
	err := r.withActor(ctx, id, func(a *actor) (bool, error) {
		var retired bool
		var err error
		content, retired, err = a.fetch(ctx)
		return retired, err
	})
	return content, err
}

func (r *Relay) Overwrite(ctx context.Context, id domain.SessionID, content string) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSessionID, id)
	}

	return r.withActor(ctx, id, func(a *actor) (bool, error) {
		return a.overwrite(ctx, content)
	})
}

// Wait returns the next unread edit, blocking up to the configured wait
// timeout. domain.ErrNoContentYet means the caller should simply ask again.
func (r *Relay) Wait(ctx context.Context, id domain.SessionID) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSessionID, id)
	}

	var content string
	err := r.withActor(ctx, id, func(a *actor) (bool, error) {
		var retired bool
		var err error
		content, retired, err = a.wait(ctx)
		return retired, err
	})
	return content, err
}

func (r *Relay) Destroy(ctx context.Context, id domain.SessionID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSessionID, id)
	}

	err := r.withActor(ctx, id, func(a *actor) (bool, error) {
		return a.destroy(ctx)
	})
	if err != nil {
		return err
	}

	r.logger.Info("session deleted", "session", string(id))
	return nil
}

// Restore loads every stored session into an actor so the idle sweeper can
// see sessions persisted by a previous process.
func (r *Relay) Restore(ctx context.Context) (int, error) {
	sessions, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored sessions: %w", err)
	}

	restored := 0
	for _, session := range sessions {
		if !session.ID.Valid() {
			r.logger.Warn("skipping stored session with invalid id", "session", string(session.ID))
			continue
		}
		err := r.withActor(ctx, session.ID, func(a *actor) (bool, error) {
			return a.ensure(ctx)
		})
		if err != nil {
			return restored, fmt.Errorf("restore session %s: %w", session.ID, err)
		}
		restored++
	}

	return restored, nil
}

// Sweep destroys sessions idle for longer than the idle timeout and returns
// how many were evicted.
func (r *Relay) Sweep(ctx context.Context) int {
	now := r.clock.Now()
	evictedCount := 0

	for id, a := range r.snapshotActors() {
		if a.waiting.Load() {
			continue
		}
		if last := a.lastActivity.Load(); last != 0 && now.Sub(time.Unix(0, last)) < r.cfg.IdleTimeout {
			continue
		}

		evicted, retired, err := a.evictIfIdle(ctx, now, r.cfg.IdleTimeout)
		if retired || errors.Is(err, errActorStopped) {
			r.forget(id, a)
		}
		if err != nil && !errors.Is(err, errActorStopped) {
			r.logger.Warn("evict idle session", "session", string(id), "error", err)
			continue
		}
		if evicted {
			evictedCount++
			r.logger.Info("evicted idle session", "session", string(id), "idle_timeout", r.cfg.IdleTimeout)
		}
	}

	return evictedCount
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Relay) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	for {
		tick := make(chan struct{})
		timer := r.clock.AfterFunc(interval, func() { close(tick) })

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-tick:
		}

		r.Sweep(ctx)
	}
}

func (r *Relay) Stats() Stats {
	now := r.clock.Now()
	stats := Stats{
		IdleTimeout: r.cfg.IdleTimeout,
		Uptime:      now.Sub(r.startedAt),
	}

	for _, a := range r.snapshotActors() {
		if !a.active.Load() {
			continue
		}
		stats.Sessions++
		if a.waiting.Load() {
			stats.Waiters++
			continue
		}
		if last := a.lastActivity.Load(); last != 0 {
			if idle := now.Sub(time.Unix(0, last)); idle > stats.OldestIdle {
				stats.OldestIdle = idle
			}
		}
	}

	return stats
}

// Close stops every actor. Pending waits resolve as ErrNoContentYet so
// long-polling clients come back and retry.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	actors := r.actors
	r.actors = map[domain.SessionID]*actor{}
	r.mu.Unlock()

	for _, a := range actors {
		a.shutdown()
	}
}

func (r *Relay) withActor(ctx context.Context, id domain.SessionID, op func(*actor) (bool, error)) error {
	for attempt := 0; attempt < maxActorAttempts; attempt++ {
		a, err := r.resolve(id)
		if err != nil {
			return err
		}

		retired, err := op(a)
		if retired || errors.Is(err, errActorStopped) {
			r.forget(id, a)
		}
		if errors.Is(err, errActorStopped) {
			continue
		}
		return err
	}

	return domain.ErrSessionNotFound
}

// resolve returns the one actor for id, starting it on first use.
func (r *Relay) resolve(id domain.SessionID) (*actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRelayClosed
	}
	if a, ok := r.actors[id]; ok {
		return a, nil
	}

	a := newActor(id, r.store, r.clock, r.logger, r.cfg.WaitTimeout)
	r.actors[id] = a
	return a, nil
}

func (r *Relay) forget(id domain.SessionID, a *actor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.actors[id] == a {
		delete(r.actors, id)
	}
}

func (r *Relay) snapshotActors() map[domain.SessionID]*actor {
	r.mu.Lock()
	defer r.mu.Unlock()

	actors := make(map[domain.SessionID]*actor, len(r.actors))
	for id, a := range r.actors {
		actors[id] = a
	}
	return actors
}
