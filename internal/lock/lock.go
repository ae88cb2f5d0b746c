// Package lock provides the per-doctor mutual exclusion scope used by every
// calendar mutation.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when the doctor's scope could not be acquired within the wait bound.
var ErrBusy = errors.New("doctor calendar is busy")

// Locker guards critical sections per doctor.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// LocalLocker is an in-process Locker. Each doctor gets a one-slot semaphore,
// created on first use and dropped once nobody holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates a locker whose acquisitions give up after wait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: make(map[uuid.UUID]*slot),
		wait:  wait,
	}
}

func (l *LocalLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	s := l.acquireRef(doctorID)
	defer l.releaseRef(doctorID, s)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *LocalLocker) acquireRef(doctorID uuid.UUID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[doctorID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[doctorID] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) releaseRef(doctorID uuid.UUID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, doctorID)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
