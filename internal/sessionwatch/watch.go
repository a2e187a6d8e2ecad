package sessionwatch

import (
	"context"
	"sync"
	"time"

	"github.com/mtc-tools/neos-proxy/internal/logging"
	"github.com/mtc-tools/neos-proxy/internal/neosapi"
	"github.com/mtc-tools/neos-proxy/internal/usercache"
)

var log = logging.L("sessionwatch")

// A host registered less than this long ago counts as new.
const newHostWindow = 7 * 24 * time.Hour

// ProfileSource resolves a user id to an abridged profile, typically the
// user cache.
type ProfileSource interface {
	Lookup(ctx context.Context, userID string) (usercache.AbridgedUser, error)
}

// EnrichedSession pairs a surviving session with its host's abridged
// profile. Host is nil when the session has no host user id or the
// lookup failed.
type EnrichedSession struct {
	Session neosapi.Session
	Host    *usercache.AbridgedUser
}

// Watcher filters each poll's session list down to the interesting ones
// and tracks which session ids were seen on the previous poll.
type Watcher struct {
	profiles ProfileSource

	mu    sync.Mutex
	known map[string]struct{}
}

func New(profiles ProfileSource) *Watcher {
	return &Watcher{
		profiles: profiles,
		known:    make(map[string]struct{}),
	}
}

// Filter enriches and filters one poll's sessions and swaps the
// known-session-id set to the surviving ids. The returned flag is true
// iff at least one surviving id was absent from the previous poll.
func (w *Watcher) Filter(ctx context.Context, sessions []neosapi.Session, now time.Time) ([]EnrichedSession, bool) {
	surviving := make([]EnrichedSession, 0, len(sessions))
	for _, s := range sessions {
		host := w.resolveHost(ctx, &s)
		if !interesting(&s, host, now) {
			continue
		}
		surviving = append(surviving, EnrichedSession{Session: s, Host: host})
	}

	newSet := make(map[string]struct{}, len(surviving))
	for _, es := range surviving {
		newSet[es.Session.SessionID] = struct{}{}
	}

	w.mu.Lock()
	notify := false
	for id := range newSet {
		if _, seen := w.known[id]; !seen {
			notify = true
			break
		}
	}
	// Last poll wins: replaced outright, never merged.
	w.known = newSet
	w.mu.Unlock()

	return surviving, notify
}

// resolveHost looks up the host profile through the cache. A lookup
// failure is contained to this session: logged, host treated as absent.
func (w *Watcher) resolveHost(ctx context.Context, s *neosapi.Session) *usercache.AbridgedUser {
	if s.HostUserID == nil {
		return nil
	}
	host, err := w.profiles.Lookup(ctx, *s.HostUserID)
	if err != nil {
		log.Warn("host profile lookup failed",
			logging.KeyUserID, *s.HostUserID,
			logging.KeySessionID, s.SessionID,
			logging.KeyError, err,
		)
		return nil
	}
	return &host
}

func interesting(s *neosapi.Session, host *usercache.AbridgedUser, now time.Time) bool {
	if !s.IsValid || s.HasEnded || s.ActiveUsers <= 0 || !s.HostPresent() {
		return false
	}
	return hostIsNew(host, now) || neosapi.HasRecognizedPrefix(s.DisplayName())
}

// hostIsNew treats an unresolved profile as new: an unknown host is more
// interesting than a known old one.
func hostIsNew(host *usercache.AbridgedUser, now time.Time) bool {
	if host == nil {
		return true
	}
	return now.Sub(host.RegistrationDate.Time) < newHostWindow
}
