// Package locks provides the file-backed mutual exclusion primitive that
// rate limits build requests per project.
package locks

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Key identifies the mutual-exclusion domain: one lock per
// (provider, owner, repo) triple.
type Key struct {
	Provider string
	Owner    string
	Repo     string
}

// String returns the canonical key representation used in log output.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Provider, k.Owner, k.Repo)
}

// filename returns the marker filename for this key. Provider domains keep
// their dots; owner and repo are sanitized against path separators.
func (k Key) filename() string {
	sanitize := func(s string) string {
		return strings.ReplaceAll(s, string(os.PathSeparator), "-")
	}
	return fmt.Sprintf("%s_%s_%s.lock", sanitize(k.Provider), sanitize(k.Owner), sanitize(k.Repo))
}

// Record is the persisted lock marker payload.
type Record struct {
	Provider  string    `json:"provider"`
	Owner     string    `json:"owner"`
	Repo      string    `json:"repo"`
	CreatedAt time.Time `json:"created_at"`
}

// Acquisition is the result of an Acquire attempt.
type Acquisition struct {
	Acquired  bool
	Remaining time.Duration // populated when not acquired
}

// RemainingMinutes reports the remaining hold time in minutes, rounded to
// one decimal. Callers surface this value to requesters verbatim.
func (a Acquisition) RemainingMinutes() float64 {
	return math.Round(a.Remaining.Minutes()*10) / 10
}

// Store is a directory of lock marker files, one per project key.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates the lock directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// path returns the marker path for a key.
func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, key.filename())
}

// Acquire attempts to take the lock for key. The admission point is an
// exclusive O_CREATE|O_EXCL create, so two concurrent callers cannot both
// observe an acquired lock: the OS arbitrates. A marker older than limit is
// treated as expired, removed, and the create is retried once; losing that
// retry race reports the lock as held for the full limit.
func (s *Store) Acquire(key Key, limit time.Duration) (Acquisition, error) {
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.tryCreate(key)
		if err != nil {
			return Acquisition{}, err
		}
		if created {
			return Acquisition{Acquired: true}, nil
		}

		rec, err := s.read(key)
		if err != nil {
			if os.IsNotExist(err) {
				// Holder released between our create and read; retry.
				continue
			}
			return Acquisition{}, err
		}

		age := s.now().Sub(rec.CreatedAt)
		if age <= limit {
			return Acquisition{Remaining: limit - age}, nil
		}

		// Expired: remove the stale marker and retry the exclusive create.
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return Acquisition{}, fmt.Errorf("remove expired lock %s: %w", key, err)
		}
	}
	return Acquisition{Remaining: limit}, nil
}

// tryCreate performs the atomic create-if-absent. Returns false when the
// marker already exists.
func (s *Store) tryCreate(key Key) (bool, error) {
	f, err := os.OpenFile(s.path(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create lock %s: %w", key, err)
	}
	rec := Record{
		Provider:  key.Provider,
		Owner:     key.Owner,
		Repo:      key.Repo,
		CreatedAt: s.now(),
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		f.Close()
		os.Remove(s.path(key))
		return false, fmt.Errorf("write lock %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(s.path(key))
		return false, fmt.Errorf("close lock %s: %w", key, err)
	}
	return true, nil
}

// read loads the marker record for a key.
func (s *Store) read(key Key) (*Record, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", key, err)
	}
	return &rec, nil
}

// Release removes the marker. Releasing an absent lock is a no-op, not an
// error: the release path runs unconditionally after every build outcome.
func (s *Store) Release(key Key) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// IsExpired reports whether the marker for key exists and is older than
// limit. An absent marker is not expired.
func (s *Store) IsExpired(key Key, limit time.Duration) (bool, error) {
	rec, err := s.read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return s.now().Sub(rec.CreatedAt) > limit, nil
}

// SweepExpired removes every marker older than limit and returns the count
// removed. Used by the janitor so abandoned locks do not deny retries.
func (s *Store) SweepExpired(limit time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read lock directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			// Unparseable marker: age by mtime as a fallback.
			info, ierr := entry.Info()
			if ierr != nil || s.now().Sub(info.ModTime()) <= limit {
				continue
			}
			if os.Remove(path) == nil {
				removed++
			}
			continue
		}
		if s.now().Sub(rec.CreatedAt) > limit {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
