package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/bnema/editor-relay/internal/ports"
)

var (
	errActorStopped = errors.New("session actor stopped")
	errSessionTaken = errors.New("session id already in use")
)

type actorState int

const (
	actorUninitialized actorState = iota
	actorActive
	actorDestroyed
)

type waitResult struct {
	content string
	err     error
}

type waiter struct {
	result chan waitResult
	timer  ports.Timer
}

// actor owns the state of one session. Every operation runs as a closure on
// the actor's own goroutine, so operations on one session never interleave.
type actor struct {
	id          domain.SessionID
	store       ports.SessionStore
	clock       ports.Clock
	logger      *slog.Logger
	waitTimeout time.Duration

	inbox   chan func()
	stopped chan struct{}

	// Mirrors of the owned state, readable without a mailbox round trip.
	active       atomic.Bool
	waiting      atomic.Bool
	lastActivity atomic.Int64

	// Everything below is owned by the run goroutine.
	loaded    bool
	closing   bool
	state     actorState
	saved     string
	pending   *string
	waiter    *waiter
	createdAt time.Time
	touchedAt time.Time
}

func newActor(id domain.SessionID, store ports.SessionStore, clock ports.Clock, logger *slog.Logger, waitTimeout time.Duration) *actor {
	a := &actor{
		id:          id,
		store:       store,
		clock:       clock,
		logger:      logger.With("session", string(id)),
		waitTimeout: waitTimeout,
		inbox:       make(chan func()),
		stopped:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *actor) run() {
	defer close(a.stopped)

	for {
		fn := <-a.inbox
		fn()
		if a.closing || a.vacant() {
			a.logger.Debug("session actor stopped", "state", a.state)
			return
		}
	}
}

func (a *actor) vacant() bool {
	return a.state != actorActive && a.waiter == nil
}

// do runs fn on the actor goroutine and reports whether the actor retired
// right after it.
func (a *actor) do(ctx context.Context, fn func()) (bool, error) {
	done := make(chan struct{})
	var retired bool
	wrapped := func() {
		fn()
		retired = a.closing || a.vacant()
		close(done)
	}

	select {
	case a.inbox <- wrapped:
	case <-a.stopped:
		return false, errActorStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	<-done
	return retired, nil
}

// post queues fn without waiting for it. Dropped once the actor has stopped.
func (a *actor) post(fn func()) {
	select {
	case a.inbox <- fn:
	case <-a.stopped:
	}
}

func (a *actor) create(ctx context.Context, content string, exclusive bool) (bool, error) {
	var opErr error
	retired, err := a.do(ctx, func() {
		if opErr = a.ensureLoaded(ctx); opErr != nil {
			return
		}
		if exclusive && a.state == actorActive {
			opErr = errSessionTaken
			return
		}

		now := a.clock.Now()
		session := domain.Session{ID: a.id, SavedContent: content, CreatedAt: now, LastActivity: now}
		if opErr = a.save(ctx, session); opErr != nil {
			return
		}

		if a.waiter != nil {
			a.resolveWaiter(waitResult{err: domain.ErrNoContentYet})
		}
		a.apply(session)
		a.logger.Debug("session created", "bytes", len(content))
	})
	if err != nil {
		return false, err
	}

	return retired, opErr
}

func (a *actor) fetch(ctx context.Context) (string, bool, error) {
	var content string
	var opErr error
	retired, err := a.do(ctx, func() {
		if opErr = a.ensureLoaded(ctx); opErr != nil {
			return
		}
		if a.state != actorActive || a.saved == "" {
			opErr = domain.ErrSessionNotFound
			return
		}

		a.touch(a.clock.Now())
		content = a.saved
	})
	if err != nil {
		return "", false, err
	}

	return content, retired, opErr
}

func (a *actor) overwrite(ctx context.Context, content string) (bool, error) {
	var opErr error
	retired, err := a.do(ctx, func() {
		if opErr = a.ensureLoaded(ctx); opErr != nil {
			return
		}
		if a.state != actorActive {
			opErr = domain.ErrSessionNotFound
			return
		}

		now := a.clock.Now()
		session := a.snapshot()
		session.LastActivity = now
		if a.waiter != nil {
			session.PendingEdit = nil
		} else {
			session.PendingEdit = &content
		}
		if opErr = a.save(ctx, session); opErr != nil {
			return
		}

		a.touch(now)
		if a.waiter != nil {
			a.pending = nil
			a.resolveWaiter(waitResult{content: content})
			a.logger.Debug("edit delivered to waiter", "bytes", len(content))
			return
		}

		a.pending = &content
		a.logger.Debug("edit stored as pending", "bytes", len(content))
	})
	if err != nil {
		return false, err
	}

	return retired, opErr
}

func (a *actor) wait(ctx context.Context) (string, bool, error) {
	var content string
	var registered *waiter
	var opErr error
	retired, err := a.do(ctx, func() {
		if opErr = a.ensureLoaded(ctx); opErr != nil {
			return
		}
		if a.state != actorActive {
			opErr = domain.ErrSessionNotFound
			return
		}

		now := a.clock.Now()
		if a.pending != nil {
			session := a.snapshot()
			session.PendingEdit = nil
			session.LastActivity = now
			if opErr = a.save(ctx, session); opErr != nil {
				return
			}

			content = *a.pending
			a.pending = nil
			a.touch(now)
			return
		}

		if a.waiter != nil {
			opErr = domain.ErrWaitConflict
			return
		}

		registered = a.register()
		a.touch(now)
	})
	if err != nil {
		return "", false, err
	}
	if registered == nil {
		return content, retired, opErr
	}

	select {
	case res := <-registered.result:
		return res.content, false, res.err
	case <-ctx.Done():
		a.withdraw(registered)
		return "", false, ctx.Err()
	}
}

func (a *actor) register() *waiter {
	w := &waiter{result: make(chan waitResult, 1)}
	w.timer = a.clock.AfterFunc(a.waitTimeout, func() {
		a.post(func() {
			if a.waiter != w {
				return
			}
			a.touch(a.clock.Now())
			a.resolveWaiter(waitResult{err: domain.ErrNoContentYet})
		})
	})

	a.waiter = w
	a.waiting.Store(true)
	return w
}

// withdraw drops a waiter whose caller went away. An edit that was already
// handed to it goes back into the pending slot unless a newer one arrived.
func (a *actor) withdraw(w *waiter) {
	_, _ = a.do(context.Background(), func() {
		if a.waiter == w {
			a.waiter = nil
			a.waiting.Store(false)
			w.timer.Stop()
			return
		}

		select {
		case res := <-w.result:
			if res.err != nil || a.state != actorActive || a.pending != nil {
				return
			}
			session := a.snapshot()
			session.PendingEdit = &res.content
			if err := a.save(context.Background(), session); err != nil {
				a.logger.Warn("restore undelivered edit", "error", err)
			}
			a.pending = &res.content
		default:
		}
	})
}

func (a *actor) destroy(ctx context.Context) (bool, error) {
	var opErr error
	retired, err := a.do(ctx, func() {
		opErr = a.erase(ctx)
	})
	if err != nil {
		return false, err
	}

	return retired, opErr
}

// evictIfIdle destroys the session when it has been untouched for at least
// idle and nobody is waiting on it.
func (a *actor) evictIfIdle(ctx context.Context, now time.Time, idle time.Duration) (bool, bool, error) {
	var evicted bool
	var opErr error
	retired, err := a.do(ctx, func() {
		if opErr = a.ensureLoaded(ctx); opErr != nil {
			return
		}
		if a.state != actorActive || a.waiter != nil || now.Sub(a.touchedAt) < idle {
			return
		}

		if opErr = a.erase(ctx); opErr != nil {
			return
		}
		evicted = true
	})
	if err != nil {
		return false, false, err
	}

	return evicted, retired, opErr
}

func (a *actor) ensure(ctx context.Context) (bool, error) {
	var opErr error
	retired, err := a.do(ctx, func() {
		opErr = a.ensureLoaded(ctx)
	})
	if err != nil {
		return false, err
	}

	return retired, opErr
}

// shutdown releases any waiter with an empty result and stops the actor.
func (a *actor) shutdown() {
	a.post(func() {
		if a.waiter != nil {
			a.resolveWaiter(waitResult{err: domain.ErrNoContentYet})
		}
		a.closing = true
	})
}

func (a *actor) erase(ctx context.Context) error {
	if err := a.store.Delete(ctx, a.id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if a.waiter != nil {
		a.resolveWaiter(waitResult{err: domain.ErrSessionNotFound})
	}

	a.loaded = true
	a.state = actorDestroyed
	a.saved = ""
	a.pending = nil
	a.active.Store(false)
	a.logger.Debug("session destroyed")
	return nil
}

func (a *actor) ensureLoaded(ctx context.Context) error {
	if a.loaded {
		return nil
	}

	session, err := a.store.Load(ctx, a.id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			a.loaded = true
			return nil
		}
		return fmt.Errorf("load session: %w", err)
	}

	a.apply(session)
	a.logger.Debug("session restored from store")
	return nil
}

func (a *actor) apply(session domain.Session) {
	a.loaded = true
	a.state = actorActive
	a.saved = session.SavedContent
	a.pending = session.PendingEdit
	a.createdAt = session.CreatedAt
	a.active.Store(true)

	touched := session.LastActivity
	if touched.IsZero() {
		touched = a.clock.Now()
	}
	a.touch(touched)
}

func (a *actor) resolveWaiter(res waitResult) {
	w := a.waiter
	a.waiter = nil
	a.waiting.Store(false)
	w.timer.Stop()
	w.result <- res
}

func (a *actor) touch(now time.Time) {
	a.touchedAt = now
	a.lastActivity.Store(now.UnixNano())
}

func (a *actor) snapshot() domain.Session {
	return domain.Session{
		ID:           a.id,
		SavedContent: a.saved,
		PendingEdit:  a.pending,
		CreatedAt:    a.createdAt,
		LastActivity: a.touchedAt,
	}
}

func (a *actor) save(ctx context.Context, session domain.Session) error {
	if err := a.store.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
