package mediastore

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the media directory lock.
var ErrLocked = errors.New("media dir is locked by another process")

const lockName = ".lock"

// Lock takes the exclusive lock on the media directory without blocking.
// The returned func releases it.
func (s *Store) Lock() (func() error, error) {
	lock := flock.New(filepath.Join(s.dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire media lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock.Unlock, nil
}

// SweepIdle runs Sweep only when no ingestion run holds the directory.
func (s *Store) SweepIdle(olderThan time.Time) (int, error) {
	unlock, err := s.Lock()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.log.Warn("release media lock", slog.Any("err", err))
		}
	}()
	return s.Sweep(olderThan)
}
