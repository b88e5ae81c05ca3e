package application

import "time"

type Stats struct {
	Sessions    int
	Waiters     int
	OldestIdle  time.Duration
	IdleTimeout time.Duration
	Uptime      time.Duration
}
