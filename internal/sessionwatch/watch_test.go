package sessionwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mtc-tools/neos-proxy/internal/neosapi"
	"github.com/mtc-tools/neos-proxy/internal/usercache"
)

var now = time.Date(2023, time.April, 10, 12, 0, 0, 0, time.UTC)

type fakeProfiles struct {
	entries map[string]usercache.AbridgedUser
	err     error
	calls   int
}

func (f *fakeProfiles) Lookup(ctx context.Context, userID string) (usercache.AbridgedUser, error) {
	f.calls++
	if f.err != nil {
		return usercache.AbridgedUser{}, f.err
	}
	if entry, ok := f.entries[userID]; ok {
		return entry, nil
	}
	return usercache.AbridgedUser{}, errors.New("unknown user")
}

func oldHost() usercache.AbridgedUser {
	return usercache.AbridgedUser{
		RegistrationDate: usercache.Timestamp{Time: now.Add(-365 * 24 * time.Hour)},
		CacheTime:        usercache.Timestamp{Time: now},
	}
}

func freshHost() usercache.AbridgedUser {
	return usercache.AbridgedUser{
		RegistrationDate: usercache.Timestamp{Time: now.Add(-2 * 24 * time.Hour)},
		CacheTime:        usercache.Timestamp{Time: now},
	}
}

func strptr(s string) *string { return &s }

func liveSession(id, name, hostID, hostName string) neosapi.Session {
	s := neosapi.Session{
		SessionID:        id,
		HostUsername:     hostName,
		ActiveUsers:      2,
		JoinedUsers:      3,
		MaxUsers:         16,
		SessionBeginTime: now.Add(-time.Hour),
		IsValid:          true,
	}
	if name != "" {
		s.Name = strptr(name)
	}
	if hostID != "" {
		s.HostUserID = strptr(hostID)
		s.SessionUsers = []neosapi.SessionUser{
			{Username: hostName, UserID: strptr(hostID), IsPresent: true},
		}
	} else {
		s.SessionUsers = []neosapi.SessionUser{
			{Username: hostName, IsPresent: true},
		}
	}
	return s
}

func TestFilterKeepsRecognizedWorlds(t *testing.T) {
	profiles := &fakeProfiles{entries: map[string]usercache.AbridgedUser{"U-bob": oldHost()}}
	w := New(profiles)

	sessions := []neosapi.Session{
		liveSession("S-1", "MTC Intro", "U-bob", "Bob"),
		liveSession("S-2", "Random World", "U-bob", "Bob"),
	}
	surviving, _ := w.Filter(context.Background(), sessions, now)
	if len(surviving) != 1 || surviving[0].Session.SessionID != "S-1" {
		t.Fatalf("only the recognized world should survive, got %+v", surviving)
	}
	if surviving[0].Host == nil {
		t.Fatalf("surviving session should carry the host profile")
	}
}

func TestFilterKeepsNewHostAnywhere(t *testing.T) {
	profiles := &fakeProfiles{entries: map[string]usercache.AbridgedUser{"U-new": freshHost()}}
	w := New(profiles)

	sessions := []neosapi.Session{liveSession("S-1", "Random World", "U-new", "Newbie")}
	surviving, _ := w.Filter(context.Background(), sessions, now)
	if len(surviving) != 1 {
		t.Fatalf("a session hosted by a week-old account is interesting regardless of world")
	}
}

func TestFilterDropsDeadSessions(t *testing.T) {
	profiles := &fakeProfiles{entries: map[string]usercache.AbridgedUser{"U-bob": oldHost()}}
	w := New(profiles)

	ended := liveSession("S-1", "MTC Intro", "U-bob", "Bob")
	ended.HasEnded = true
	invalid := liveSession("S-2", "MTC Intro", "U-bob", "Bob")
	invalid.IsValid = false
	empty := liveSession("S-3", "MTC Intro", "U-bob", "Bob")
	empty.ActiveUsers = 0
	hostless := liveSession("S-4", "MTC Intro", "U-bob", "Bob")
	hostless.SessionUsers[0].IsPresent = false

	surviving, _ := w.Filter(context.Background(), []neosapi.Session{ended, invalid, empty, hostless}, now)
	if len(surviving) != 0 {
		t.Fatalf("ended, invalid, empty and host-absent sessions must all be dropped, got %+v", surviving)
	}
}

func TestFilterLookupFailureTreatsHostAsNew(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("upstream down")}
	w := New(profiles)

	// Unrecognized world, but the unresolved host counts as new.
	sessions := []neosapi.Session{liveSession("S-1", "Random World", "U-x", "X")}
	surviving, _ := w.Filter(context.Background(), sessions, now)
	if len(surviving) != 1 {
		t.Fatalf("lookup failure should not drop the session")
	}
	if surviving[0].Host != nil {
		t.Fatalf("host profile should be absent after a failed lookup")
	}
}

func TestFilterSkipsLookupWithoutHostUserID(t *testing.T) {
	profiles := &fakeProfiles{}
	w := New(profiles)

	sessions := []neosapi.Session{liveSession("S-1", "MTC Intro", "", "Anon")}
	surviving, _ := w.Filter(context.Background(), sessions, now)
	if profiles.calls != 0 {
		t.Fatalf("no host user id, no lookup; got %d calls", profiles.calls)
	}
	if len(surviving) != 1 {
		t.Fatalf("session should survive on the world-name prefix alone")
	}
}

func TestNotificationFlag(t *testing.T) {
	profiles := &fakeProfiles{entries: map[string]usercache.AbridgedUser{"U-bob": oldHost()}}
	w := New(profiles)

	poll := []neosapi.Session{
		liveSession("S-1", "MTC Intro", "U-bob", "Bob"),
		liveSession("S-2", "Neos Hub", "U-bob", "Bob"),
	}

	if _, notify := w.Filter(context.Background(), poll, now); !notify {
		t.Fatalf("first poll introduces ids and must notify")
	}
	if _, notify := w.Filter(context.Background(), poll, now); notify {
		t.Fatalf("identical second poll must not notify")
	}

	poll = append(poll, liveSession("S-3", "Training Grounds", "U-bob", "Bob"))
	if _, notify := w.Filter(context.Background(), poll, now); !notify {
		t.Fatalf("a new id in the set must notify")
	}

	// Shrinking the set is not news.
	if _, notify := w.Filter(context.Background(), poll[:1], now); notify {
		t.Fatalf("disappearing sessions must not notify")
	}

	// The dropped ids were overwritten, so their return is news again.
	if _, notify := w.Filter(context.Background(), poll, now); !notify {
		t.Fatalf("ids absent from the previous poll count as new when they return")
	}
}

func TestEmptyPollClearsKnownSet(t *testing.T) {
	profiles := &fakeProfiles{entries: map[string]usercache.AbridgedUser{"U-bob": oldHost()}}
	w := New(profiles)

	poll := []neosapi.Session{liveSession("S-1", "MTC Intro", "U-bob", "Bob")}
	w.Filter(context.Background(), poll, now)

	surviving, notify := w.Filter(context.Background(), nil, now)
	if len(surviving) != 0 || notify {
		t.Fatalf("empty poll yields nothing and no notification")
	}
}
