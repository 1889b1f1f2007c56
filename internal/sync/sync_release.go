//go:build !deadlock

// Package sync provides mutex types that can be swapped for deadlock detection.
// Release builds alias the standard library; build with -tags deadlock to use go-deadlock.
package sync

import "sync"

// Mutex is the standard sync.Mutex.
type Mutex = sync.Mutex

// RWMutex is the standard sync.RWMutex.
type RWMutex = sync.RWMutex

// Once is the standard sync.Once.
type Once = sync.Once

// WaitGroup is the standard sync.WaitGroup.
type WaitGroup = sync.WaitGroup
