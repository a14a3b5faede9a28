//go:build !deadlock

// Package syncutil provides the driver's mutex types. Building with
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// DeadlockDetection reports whether lock-order and timeout checks are compiled in.
const DeadlockDetection = false

// Mutex is a sync.Mutex.
//
//nolint:gocritic // embedded to expose Lock/Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex.
//
//nolint:gocritic // embedded to expose the full RWMutex API
type RWMutex struct {
	sync.RWMutex
}
