package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	SessionIDLength   = 8
	sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// SessionID is the only capability needed to read, write or delete a session.
type SessionID string

// Valid reports whether id is exactly eight characters of [a-z0-9].
func (id SessionID) Valid() bool {
	if len(id) != SessionIDLength {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}

	return true
}

func ParseSessionID(raw string) (SessionID, error) {
	id := SessionID(raw)
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, raw)
	}

	return id, nil
}

// NewSessionID draws each character uniformly from [a-z0-9]. It is not meant
// to be unguessable.
func NewSessionID() SessionID {
	return newSessionIDFrom(rand.IntN)
}

func newSessionIDFrom(intn func(int) int) SessionID {
	buf := make([]byte, SessionIDLength)
	for i := range buf {
		buf[i] = sessionIDAlphabet[intn(len(sessionIDAlphabet))]
	}

	return SessionID(buf)
}

// Session is the persisted form of one session's state.
type Session struct {
	ID           SessionID
	SavedContent string
	// PendingEdit is nil when there is no unread edit.
	PendingEdit  *string
	CreatedAt    time.Time
	LastActivity time.Time
}

func (s Session) IdleFor(now time.Time) time.Duration {
	if s.LastActivity.IsZero() || now.Before(s.LastActivity) {
		return 0
	}

	return now.Sub(s.LastActivity)
}
