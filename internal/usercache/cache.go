package usercache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mtc-tools/neos-proxy/internal/logging"
	"github.com/mtc-tools/neos-proxy/internal/neosapi"
)

var log = logging.L("usercache")

// AbridgedUser is the cached fact sheet derived from a full profile.
type AbridgedUser struct {
	RegistrationDate Timestamp `json:"registrationDate"`
	IsPatron         bool      `json:"isPatron"`
	IsMentor         bool      `json:"isMentor"`
	CacheTime        Timestamp `json:"cacheTime"`
}

// Abridge derives the cached fact sheet from a full profile record.
func Abridge(u *neosapi.User, now time.Time) AbridgedUser {
	return AbridgedUser{
		RegistrationDate: Timestamp{u.RegistrationDate},
		IsPatron:         u.IsPatron(),
		IsMentor:         u.IsMentor(),
		CacheTime:        Timestamp{now},
	}
}

// PersistenceError indicates the cache file could not be read or written.
// It never invalidates the in-memory state; callers log it and move on.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache file %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProfileFetcher resolves a user id to a full profile record.
type ProfileFetcher interface {
	UserProfile(ctx context.Context, userID string) (*neosapi.User, error)
}

// Cache maps user ids to abridged profiles. Entries live in memory for
// the process lifetime and are mirrored to a JSON file that is rewritten
// wholesale after every store. Failed upstream lookups are never cached;
// the next request retries.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]AbridgedUser
	path    string
	fetch   ProfileFetcher
	now     func() time.Time
}

// New returns a cache backed by the given file and fetcher. A missing or
// unparsable file yields an empty cache; that is logged, not fatal.
func New(path string, fetcher ProfileFetcher) *Cache {
	c := &Cache{
		entries: make(map[string]AbridgedUser),
		path:    path,
		fetch:   fetcher,
		now:     time.Now,
	}
	if err := c.load(); err != nil {
		log.Warn("starting with empty cache", "path", path, logging.KeyError, err)
	}
	return c
}

// Lookup returns the cached entry for userID if still valid, otherwise
// fetches the profile, stores the fresh entry and persists the map.
// A fetch failure propagates; a stale entry is never returned in that
// case, and nothing is cached.
func (c *Cache) Lookup(ctx context.Context, userID string) (AbridgedUser, error) {
	now := c.now().UTC()

	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok && isValid(entry, now) {
		return entry, nil
	}

	// Fetch outside the lock; other keys keep making progress. Concurrent
	// lookups of the same key may fetch twice and the later store wins.
	user, err := c.fetch.UserProfile(ctx, userID)
	if err != nil {
		return AbridgedUser{}, err
	}

	entry = Abridge(user, now)

	c.mu.Lock()
	c.entries[userID] = entry
	snapshot, marshalErr := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()

	if marshalErr != nil {
		log.Error("marshaling cache snapshot", logging.KeyError, marshalErr)
		return entry, nil
	}
	if err := c.persist(snapshot); err != nil {
		log.Warn("cache mirror write failed, in-memory state kept", logging.KeyError, err)
	}
	return entry, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &PersistenceError{Path: c.path, Err: err}
	}
	entries := make(map[string]AbridgedUser)
	if err := json.Unmarshal(data, &entries); err != nil {
		return &PersistenceError{Path: c.path, Err: err}
	}
	c.entries = entries
	log.Info("cache loaded", "path", c.path, "entries", len(entries))
	return nil
}

// persist replaces the cache file with the given snapshot. The write goes
// through a temp file in the same directory so a crash mid-write never
// leaves a truncated cache behind.
func (c *Cache) persist(snapshot []byte) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".user-cache-*.json.tmp")
	if err != nil {
		return &PersistenceError{Path: c.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: c.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: c.path, Err: err}
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: c.path, Err: err}
	}
	return nil
}

// isValid applies the expiry policy:
//  1. any calendar-month rollover since the entry was cached forces a
//     refresh (patron status renews monthly),
//  2. during the first four days of a month an entry older than six
//     hours is refreshed, since a patron-renewal billing cycle may flip
//     the flag mid-window,
//  3. otherwise the entry stands.
func isValid(entry AbridgedUser, now time.Time) bool {
	if monthIndex(now) > monthIndex(entry.CacheTime.Time) {
		return false
	}
	if now.Day() <= 4 && now.Sub(entry.CacheTime.Time) > 6*time.Hour {
		return false
	}
	return true
}

func monthIndex(t time.Time) int {
	t = t.UTC()
	return t.Year()*12 + int(t.Month()) - 1
}
