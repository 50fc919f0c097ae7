package acl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 50 * time.Millisecond

// Locker serialises ACL edits between cooperating processes with one lock
// file per key file. A nil Locker does not lock.
type Locker struct {
	Dir string
}

func NewLocker(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Locker{Dir: dir}, nil
}

// Lock blocks until the lock for path is held or ctx is done.
func (l *Locker) Lock(ctx context.Context, path string) (unlock func(), err error) {
	if l == nil {
		return func() {}, nil
	}
	fileLock := flock.New(l.lockPath(path))
	acquired, err := fileLock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("error acquiring lock: %w", ctx.Err())
	}
	return func() { fileLock.Unlock() }, nil
}

func (l *Locker) lockPath(path string) string {
	name := strings.ToLower(filepath.Base(path))
	return filepath.Join(l.Dir, name+".lock")
}
