//go:build deadlock

// Package sync provides mutex types that can be swapped for deadlock detection.
// Release builds alias the standard library; build with -tags deadlock to use go-deadlock.
package sync

import (
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Mutex is a mutual exclusion lock with deadlock detection.
type Mutex = deadlock.Mutex

// RWMutex is a reader/writer mutual exclusion lock with deadlock detection.
type RWMutex = deadlock.RWMutex

// Once is the standard sync.Once.
type Once = sync.Once

// WaitGroup is the standard sync.WaitGroup.
type WaitGroup = sync.WaitGroup

func init() {
	// Report a lock held longer than this.
	deadlock.Opts.DeadlockTimeout = 30 * time.Second

	if os.Getenv("CLASSWATCHER_NO_DEADLOCK_DETECT") != "" {
		deadlock.Opts.Disable = true
		return
	}

	deadlock.Opts.PrintAllCurrentGoroutines = true

	println("[DEADLOCK DETECTION ENABLED] Using go-deadlock for mutex operations")
}
