package installer

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	paxmodel "github.com/oreonproject/pax"
)

// lockRetries is how many non-blocking, deterministic-backoff attempts
// acquireFileLock makes before it falls back to a blocking wait (spec.md
// §4.7 step 1). The lock is never taken away from a live holder.
const lockRetries = 5

// fileLock is a real flock(2) advisory lock on a path, the hard
// mutual-exclusion backstop under settings.yaml's cooperative "locked" flag
// (SPEC_FULL.md §4.7: "so a crashed process cannot wedge the lock
// forever").
type fileLock struct {
	f *os.File
}

// acquireFileLock opens (creating if needed) path and takes an exclusive
// flock, retrying with backoff and then blocking until the current holder
// releases it.
func acquireFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &paxmodel.Error{Kind: paxmodel.ErrLock, Op: "installer.acquireFileLock", Inner: err}
	}

	var lastErr error
	for attempt := 0; attempt < lockRetries; attempt++ {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		lastErr = err
		time.Sleep(backoff(attempt))
	}

	// Blocking wait: returns once the holder releases the lock (the kernel
	// releases it when the holding process exits).
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, &paxmodel.Error{Kind: paxmodel.ErrLock, Op: "installer.acquireFileLock", Message: fmt.Sprintf("could not acquire lock after %d attempts", lockRetries), Inner: lastErr}
	}
	return &fileLock{f: f}, nil
}

// backoff returns a deterministic, monotonically increasing wait: 100ms *
// 2^attempt, capped at 2s.
func backoff(attempt int) time.Duration {
	d := 100 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > 2*time.Second {
			return 2 * time.Second
		}
	}
	return d
}

// Release drops the flock and closes the underlying file.
func (l *fileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
