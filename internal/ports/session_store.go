package ports

import (
	"context"

	"github.com/bnema/editor-relay/internal/domain"
)

// SessionStore persists session snapshots. Load returns
// domain.ErrSessionNotFound for unknown ids; Delete is idempotent.
type SessionStore interface {
	Load(ctx context.Context, id domain.SessionID) (domain.Session, error)
	List(ctx context.Context) ([]domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, id domain.SessionID) error
}

// NopSessionStore keeps nothing. Sessions live only as long as their actor.
type NopSessionStore struct{}

var _ SessionStore = NopSessionStore{}

func (NopSessionStore) Load(ctx context.Context, _ domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (NopSessionStore) List(ctx context.Context) ([]domain.Session, error) {
	return nil, ctx.Err()
}

func (NopSessionStore) Save(ctx context.Context, _ domain.Session) error {
	return ctx.Err()
}

func (NopSessionStore) Delete(ctx context.Context, _ domain.SessionID) error {
	return ctx.Err()
}
