// Package lock provides the advisory, exclusive file lock that enforces
// single-writer access to a collection directory across processes.
// Readers never need to acquire it.
package lock

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/xDarkicex/ndb/internal/errs"
)

// FileName is the conventional lock file name within a collection
// directory.
const FileName = "LOCK"

// CollectionLock is an exclusive, advisory lock held on a collection
// directory for the lifetime of a writer. Release frees it; the lock
// file itself remains on disk afterward.
type CollectionLock struct {
	flock          *flock.Flock
	path           string
	collectionName string
}

// Acquire takes an exclusive, non-blocking lock on collectionPath/LOCK.
// Returns a collection-locked error if another process already holds it.
func Acquire(collectionPath, collectionName string) (*CollectionLock, error) {
	lockPath := filepath.Join(collectionPath, FileName)
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, errs.IO(lockPath, "failed to acquire lock file", err)
	}
	if !locked {
		return nil, errs.CollectionLocked(collectionName)
	}

	return &CollectionLock{flock: fl, path: lockPath, collectionName: collectionName}, nil
}

// Release unlocks the collection, allowing another process to acquire it.
func (l *CollectionLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return errs.IO(l.path, "failed to release lock file", err)
	}
	return nil
}

// Path returns the lock file's path.
func (l *CollectionLock) Path() string { return l.path }

// CollectionName returns the name the lock was acquired under.
func (l *CollectionLock) CollectionName() string { return l.collectionName }

// IsLocked reports whether another process currently holds the lock on
// collectionPath, without taking it. A missing lock file is reported as
// unlocked.
func IsLocked(collectionPath string) (bool, error) {
	lockPath := filepath.Join(collectionPath, FileName)
	fl := flock.New(lockPath)

	locked, err := fl.TryLock()
	if err != nil {
		return false, errs.IO(lockPath, "failed to probe lock file", err)
	}
	if !locked {
		return true, nil
	}
	defer fl.Unlock()
	return false, nil
}
