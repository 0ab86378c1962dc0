package state

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"

	"github.com/imamik/stackforge/internal/config"
	"github.com/imamik/stackforge/internal/util/errdefs"
	"github.com/imamik/stackforge/internal/util/retry"
)

// Backend loads and saves the remote state document.
type Backend interface {
	// Load returns the stored state, or an empty one when none exists yet.
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// Locker serialises runs against one state.
type Locker interface {
	// Lock acquires the lock or returns a *errdefs.LockContentionError.
	Lock(ctx context.Context, info LockInfo) error
	// Unlock releases a lock acquired with info.
	Unlock(ctx context.Context, info LockInfo) error
	// ForceUnlock releases the lock regardless of its holder.
	ForceUnlock(ctx context.Context, lockID string) error
}

// LockInfo describes a lock holder.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Who       string    `json:"who"`
	Created   time.Time `json:"created"`
}

// NewLockInfo describes the current process holding lockID for operation.
func NewLockInfo(lockID, operation string) LockInfo {
	return LockInfo{
		ID:        uuid.NewString(),
		Path:      lockID,
		Operation: operation,
		Who:       whoami(),
		Created:   time.Now().UTC(),
	}
}

func whoami() string {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		return name
	}
	return name + "@" + host
}

// AcquireLock takes the lock according to mode. In block mode contention is
// retried with exponential backoff for up to wait; in fail-fast mode the
// first LockContentionError is returned.
func AcquireLock(ctx context.Context, l Locker, info LockInfo, mode config.LockMode, wait time.Duration, opts ...retry.Option) error {
	if mode == config.LockModeFailFast {
		return l.Lock(ctx, info)
	}

	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	base := []retry.Option{
		retry.WithMaxRetries(math.MaxInt32),
		retry.WithInitialDelay(time.Second),
		retry.WithMaxDelay(10 * time.Second),
		retry.WithRetryIf(errdefs.IsLockContention),
	}
	err := retry.WithExponentialBackoff(ctx, func() error {
		return l.Lock(ctx, info)
	}, append(base, opts...)...)
	if err != nil {
		return fmt.Errorf("failed to acquire state lock %s: %w", info.Path, err)
	}
	return nil
}
