package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrWaitConflict     = errors.New("wait already pending")
	ErrNoContentYet     = errors.New("no content yet")
	ErrIDSpaceExhausted = errors.New("could not allocate a free session id")
)
