package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// MemoryBackend keeps state in process. Saved states are copied so callers
// can keep mutating their value.
type MemoryBackend struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns a copy of the last saved state.
func (b *MemoryBackend) Load(_ context.Context) (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return New(), nil
	}
	return Decode(b.data)
}

// Save stores a copy of s.
func (b *MemoryBackend) Save(_ context.Context, s *State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	b.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]LockInfo
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]LockInfo)}
}

// Lock acquires info.Path.
func (l *MemoryLocker) Lock(_ context.Context, info LockInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[info.Path]; ok {
		return &errdefs.LockContentionError{LockID: info.Path, Holder: held.Who, Since: held.Created}
	}
	l.locks[info.Path] = info
	return nil
}

// Unlock releases info.Path if info holds it.
func (l *MemoryLocker) Unlock(_ context.Context, info LockInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.locks[info.Path]
	if !ok {
		return nil
	}
	if held.ID != info.ID {
		return fmt.Errorf("lock %s is held by %s", info.Path, held.ID)
	}
	delete(l.locks, info.Path)
	return nil
}

// ForceUnlock releases lockID.
func (l *MemoryLocker) ForceUnlock(_ context.Context, lockID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, lockID)
	return nil
}

// Held reports whether lockID is locked.
func (l *MemoryLocker) Held(lockID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[lockID]
	return ok
}
