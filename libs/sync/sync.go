// Package sync re-exports deadlock-checked mutexes under the stdlib's
// names, matching the teacher's tmsync import. Peer sets, storage maps, and
// the context stash all take many short-held locks across goroutines;
// go-deadlock catches the lock-order bugs that a plain sync.RWMutex would
// only manifest as a hang.
package sync

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// RWMutex is a drop-in for sync.RWMutex.
type RWMutex = deadlock.RWMutex

// Mutex is a drop-in for sync.Mutex.
type Mutex = deadlock.Mutex
