package neosapi

import (
	"strings"
	"time"
)

// MentorTag is the profile tag the platform assigns to mentors. The
// comparison is case-sensitive.
const MentorTag = "neos mentor"

// Session is one hosted multiplayer room as returned by the directory
// endpoint. Sessions are immutable snapshots; a fresh list is fetched on
// every poll.
type Session struct {
	Name                 *string       `json:"name"`
	Description          *string       `json:"description"`
	CorrespondingWorldID *World        `json:"correspondingWorldId"`
	Tags                 []string      `json:"tags"`
	SessionID            string        `json:"sessionId"`
	NormalizedSessionID  string        `json:"normalizedSessionId"`
	HostUserID           *string       `json:"hostUserId"`
	HostMachineID        string        `json:"hostMachineId"`
	HostUsername         string        `json:"hostUsername"`
	CompatibilityHash    string        `json:"compatibilityHash"`
	UniverseID           *string       `json:"universeId"`
	NeosVersion          string        `json:"neosVersion"`
	HeadlessHost         bool          `json:"headlessHost"`
	SessionURLs          []string      `json:"sessionURLs"`
	SessionUsers         []SessionUser `json:"sessionUsers"`
	Thumbnail            *string       `json:"thumbnail"`
	JoinedUsers          int           `json:"joinedUsers"`
	ActiveUsers          int           `json:"activeUsers"`
	MaxUsers             int           `json:"maxUsers"`
	MobileFriendly       bool          `json:"mobileFriendly"`
	SessionBeginTime     time.Time     `json:"sessionBeginTime"`
	LastUpdate           time.Time     `json:"lastUpdate"`
	AwaySince            *string       `json:"awaySince"`
	AccessLevel          string        `json:"accessLevel"`
	HasEnded             bool          `json:"hasEnded"`
	IsValid              bool          `json:"isValid"`
}

// World identifies the world record a session was started from.
type World struct {
	RecordID string `json:"recordId"`
	OwnerID  string `json:"ownerId"`
	IsValid  bool   `json:"isValid"`
}

// SessionUser is one participant of a session. UserID is nil for
// anonymous and guest participants.
type SessionUser struct {
	Username  string  `json:"username"`
	UserID    *string `json:"userID"`
	IsPresent bool    `json:"isPresent"`
}

// DisplayName returns the session name, or the empty string when the
// session has none.
func (s *Session) DisplayName() string {
	if s.Name == nil {
		return ""
	}
	return *s.Name
}

// HostPresent reports whether the host is among the present participants.
// Matching is by user id when the session carries one; otherwise it falls
// back to username equality, since world ids are unstable across
// republishes but usernames among present participants are not.
func (s *Session) HostPresent() bool {
	for _, u := range s.SessionUsers {
		if !u.IsPresent {
			continue
		}
		if s.HostUserID != nil {
			if u.UserID != nil && *u.UserID == *s.HostUserID {
				return true
			}
		} else if u.Username == s.HostUsername {
			return true
		}
	}
	return false
}

// HeadedUsers returns the participant list with the headless host's own
// service-account entry removed. For sessions with a real host the full
// list is returned.
func (s *Session) HeadedUsers() []SessionUser {
	if !s.HeadlessHost {
		return s.SessionUsers
	}
	users := make([]SessionUser, 0, len(s.SessionUsers))
	for _, u := range s.SessionUsers {
		if sameOptional(u.UserID, s.HostUserID) && u.Username == s.HostUsername {
			continue
		}
		users = append(users, u)
	}
	return users
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// User is the full profile record for one user id.
type User struct {
	ID                 string       `json:"id"`
	Username           string       `json:"username"`
	NormalizedUsername string       `json:"normalizedUsername"`
	RegistrationDate   time.Time    `json:"registrationDate"`
	IsVerified         bool         `json:"isVerified"`
	QuotaBytes         int64        `json:"quotaBytes"`
	IsLocked           bool         `json:"isLocked"`
	UsedBytes          int64        `json:"usedBytes"`
	Profile            *Profile     `json:"profile"`
	PatreonData        *PatreonData `json:"patreonData"`
	Tags               []string     `json:"tags"`
}

// Profile is the user-editable part of a profile.
type Profile struct {
	IconURL string `json:"iconUrl"`
}

// PatreonData carries the platform's patronage bookkeeping. Only the
// supporter flag matters here; the rest is tolerated and ignored.
type PatreonData struct {
	IsPatreonSupporter bool `json:"isPatreonSupporter"`
}

// IsPatron reports whether the user is an active patron. A missing
// patreonData sub-record means no.
func (u *User) IsPatron() bool {
	return u.PatreonData != nil && u.PatreonData.IsPatreonSupporter
}

// IsMentor reports whether the user's tag list carries the mentor tag.
func (u *User) IsMentor() bool {
	for _, tag := range u.Tags {
		if tag == MentorTag {
			return true
		}
	}
	return false
}

// UserStatus is the user's current online and device state.
type UserStatus struct {
	OnlineStatus              string    `json:"onlineStatus"`
	LastStatusChange          time.Time `json:"lastStatusChange"`
	CurrentSessionAccessLevel int       `json:"currentSessionAccessLevel"`
	CurrentSessionHidden      bool      `json:"currentSessionHidden"`
	CurrentHosting            bool      `json:"currentHosting"`
	CompatibilityHash         string    `json:"compatibilityHash"`
	NeosVersion               string    `json:"neosVersion"`
	OutputDevice              string    `json:"outputDevice"`
	IsMobile                  bool      `json:"isMobile"`
}

// HasRecognizedPrefix reports whether name starts with one of the
// recognized world-name prefixes.
func HasRecognizedPrefix(name string) bool {
	for _, prefix := range worldNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// World ids change on republish, so recognition goes by name prefix.
var worldNamePrefixes = [...]string{
	"MTC",
	"Metaverse Training",
	"Neos Hub",
	"The Avatar Station",
	"Training",
}
