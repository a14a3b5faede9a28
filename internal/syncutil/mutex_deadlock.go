//go:build deadlock

// Package syncutil provides the driver's mutex types. Building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock.
package syncutil

import (
	"os"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether lock-order and timeout checks are compiled in.
const DeadlockDetection = true

// lockTimeout bounds how long any driver lock may be waited on. Register
// transactions finish in milliseconds; the longest legitimate hold is a
// session write waiting out its card retries.
const lockTimeout = 15 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = lockTimeout
	if v := os.Getenv("MFRC522_DEADLOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			deadlock.Opts.DeadlockTimeout = d
		}
	}
}

// Mutex is a deadlock.Mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex.
type RWMutex struct {
	deadlock.RWMutex
}
