package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/imamik/stackforge/internal/platform/dynamodb"
	"github.com/imamik/stackforge/internal/util/errdefs"
)

// LockTable is the subset of the DynamoDB client used by DynamoDBLocker.
type LockTable interface {
	PutLock(ctx context.Context, table string, item dynamodb.LockItem) error
	GetLock(ctx context.Context, table, lockID string) (*dynamodb.LockItem, error)
	DeleteLock(ctx context.Context, table, lockID, owner string) error
}

// DynamoDBLocker keeps one lock item per state in a DynamoDB table.
type DynamoDBLocker struct {
	table LockTable
	name  string
}

// NewDynamoDBLocker returns a locker over the named table.
func NewDynamoDBLocker(table LockTable, name string) *DynamoDBLocker {
	return &DynamoDBLocker{table: table, name: name}
}

// Lock writes the lock item with a conditional put.
func (l *DynamoDBLocker) Lock(ctx context.Context, info LockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode lock info: %w", err)
	}

	err = l.table.PutLock(ctx, l.name, dynamodb.LockItem{LockID: info.Path, Info: string(data), Owner: info.ID})
	if errors.Is(err, dynamodb.ErrLockHeld) {
		return l.contention(ctx, info.Path)
	}
	return err
}

// contention describes the current holder, best effort.
func (l *DynamoDBLocker) contention(ctx context.Context, lockID string) error {
	lockErr := &errdefs.LockContentionError{LockID: lockID}
	item, err := l.table.GetLock(ctx, l.name, lockID)
	if err != nil || item == nil {
		return lockErr
	}
	var holder LockInfo
	if json.Unmarshal([]byte(item.Info), &holder) == nil {
		lockErr.Holder = holder.Who
		if holder.Operation != "" {
			lockErr.Holder += " (" + holder.Operation + ")"
		}
		lockErr.Since = holder.Created
	}
	return lockErr
}

// Unlock deletes the lock item if this run still owns it.
func (l *DynamoDBLocker) Unlock(ctx context.Context, info LockInfo) error {
	return l.table.DeleteLock(ctx, l.name, info.Path, info.ID)
}

// ForceUnlock deletes the lock item unconditionally.
func (l *DynamoDBLocker) ForceUnlock(ctx context.Context, lockID string) error {
	return l.table.DeleteLock(ctx, l.name, lockID, "")
}
