package neosapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sessionListBody = `[
  {
    "name": "MTC Intro",
    "sessionId": "S-1",
    "normalizedSessionId": "s-1",
    "hostUserId": "U-bob",
    "hostUsername": "Bob",
    "headlessHost": false,
    "sessionURLs": ["neos-session://S-1"],
    "sessionUsers": [
      {"username": "Bob", "userID": "U-bob", "isPresent": true},
      {"username": "Guest", "userID": null, "isPresent": true}
    ],
    "joinedUsers": 2,
    "activeUsers": 2,
    "maxUsers": 16,
    "sessionBeginTime": "2023-04-01T10:00:00Z",
    "lastUpdate": "2023-04-01T10:05:00Z",
    "accessLevel": "Anyone",
    "hasEnded": false,
    "isValid": true,
    "someFutureField": {"nested": true}
  },
  {
    "name": null,
    "sessionId": "S-2",
    "normalizedSessionId": "s-2",
    "hostUsername": "headless-bot",
    "headlessHost": true,
    "sessionUsers": [],
    "joinedUsers": 0,
    "activeUsers": 0,
    "maxUsers": 32,
    "sessionBeginTime": "2023-04-01T09:00:00Z",
    "lastUpdate": "2023-04-01T09:00:00Z",
    "accessLevel": "Private",
    "hasEnded": true,
    "isValid": true
  }
]`

func TestSessionsDecodesListTolerantly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sessionListBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	sessions, err := c.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	first := sessions[0]
	if first.DisplayName() != "MTC Intro" {
		t.Errorf("unexpected name %q", first.DisplayName())
	}
	if first.HostUserID == nil || *first.HostUserID != "U-bob" {
		t.Errorf("host user id should decode, got %v", first.HostUserID)
	}
	if first.SessionUsers[1].UserID != nil {
		t.Errorf("null userID should decode to nil")
	}
	if !first.SessionBeginTime.Equal(time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("begin time mismatch: %v", first.SessionBeginTime)
	}

	second := sessions[1]
	if second.Name != nil {
		t.Errorf("missing name should stay nil")
	}
	if second.HostUserID != nil {
		t.Errorf("missing host user id should stay nil")
	}
}

func TestSessionsMalformedBodyIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Sessions(context.Background())
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestSessionsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, time.Second)
	_, err := c.Sessions(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestSessionsNotFoundIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Sessions(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError for 404, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("session listing has no user to be missing, got %v", err)
	}
}

func TestUserProfileDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/U-bob" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": "U-bob",
			"username": "Bob",
			"normalizedUsername": "bob",
			"registrationDate": "2021-01-02T03:04:05Z",
			"isVerified": true,
			"quotaBytes": 1048576,
			"isLocked": false,
			"usedBytes": 2048,
			"patreonData": {"isPatreonSupporter": true, "lastTotalCents": 500},
			"tags": ["neos mentor"]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	user, err := c.UserProfile(context.Background(), "U-bob")
	if err != nil {
		t.Fatalf("UserProfile: %v", err)
	}
	if !user.IsPatron() || !user.IsMentor() {
		t.Fatalf("expected patron mentor, got %+v", user)
	}
	if !user.RegistrationDate.Equal(time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("registration date mismatch: %v", user.RegistrationDate)
	}
}

func TestUserProfileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.UserProfile(context.Background(), "U-missing")
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	var nf *NotFoundError
	if errors.As(err, &nf) && nf.UserID != "U-missing" {
		t.Fatalf("error should carry the user id, got %q", nf.UserID)
	}
}

func TestUserStatusDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/U-bob/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"onlineStatus": "Online",
			"lastStatusChange": "2023-04-01T10:00:00Z",
			"currentSessionAccessLevel": 3,
			"outputDevice": "VR",
			"isMobile": false
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	status, err := c.UserStatus(context.Background(), "U-bob")
	if err != nil {
		t.Fatalf("UserStatus: %v", err)
	}
	if status.OutputDevice != "VR" {
		t.Fatalf("unexpected output device %q", status.OutputDevice)
	}
}

func TestServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.UserProfile(context.Background(), "U-bob")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError for 502, got %v", err)
	}
}
