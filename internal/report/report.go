package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mtc-tools/neos-proxy/internal/logging"
	"github.com/mtc-tools/neos-proxy/internal/neosapi"
	"github.com/mtc-tools/neos-proxy/internal/sessionwatch"
	"github.com/mtc-tools/neos-proxy/internal/usercache"
)

var log = logging.L("report")

// StatusSource resolves a user id to its live status record.
type StatusSource interface {
	UserStatus(ctx context.Context, userID string) (*neosapi.UserStatus, error)
}

// Formatter renders the line-oriented text protocol consumed downstream.
// The output format is a wire contract; change it and the consumer
// breaks.
type Formatter struct {
	statuses StatusSource
	loc      *time.Location
}

func New(statuses StatusSource) *Formatter {
	return &Formatter{statuses: statuses, loc: time.Local}
}

// WithLocation overrides the timezone used for registration dates.
func (f *Formatter) WithLocation(loc *time.Location) *Formatter {
	f.loc = loc
	return f
}

// SessionReport renders one line per surviving session, newest first,
// prefixed with a single marker character: N when a new session appeared
// since the previous poll, X otherwise.
func (f *Formatter) SessionReport(ctx context.Context, sessions []sessionwatch.EnrichedSession, notify bool, now time.Time) string {
	ordered := make([]sessionwatch.EnrichedSession, len(sessions))
	copy(ordered, sessions)
	// Begin times are not expected to collide at millisecond granularity;
	// the session id tie-break just pins the order if they ever do.
	sort.Slice(ordered, func(i, j int) bool {
		bi, bj := ordered[i].Session.SessionBeginTime, ordered[j].Session.SessionBeginTime
		if !bi.Equal(bj) {
			return bi.After(bj)
		}
		return ordered[i].Session.SessionID < ordered[j].Session.SessionID
	})

	lines := make([]string, 0, len(ordered))
	for i := range ordered {
		lines = append(lines, f.sessionLine(ctx, &ordered[i], now))
	}

	marker := "X"
	if notify {
		marker = "N"
	}
	return marker + strings.Join(lines, "\n")
}

func (f *Formatter) sessionLine(ctx context.Context, es *sessionwatch.EnrichedSession, now time.Time) string {
	s := &es.Session

	uptime := int64(now.Sub(s.SessionBeginTime).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	return fmt.Sprintf("%s (%s<b></closeall>) (%d/%d) %d:%02d%s",
		s.HostUsername,
		s.DisplayName(),
		s.ActiveUsers,
		s.JoinedUsers,
		uptime/60,
		uptime%60,
		f.hostSuffix(ctx, es),
	)
}

// hostSuffix annotates a line with the host's registration date, patron
// and mentor flags and, best effort, the output device. No resolved
// profile means no suffix; a failed status fetch just drops the device.
func (f *Formatter) hostSuffix(ctx context.Context, es *sessionwatch.EnrichedSession) string {
	if es.Host == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(" ")
	b.WriteString(es.Host.RegistrationDate.In(f.loc).Format("2006-01-02"))
	if es.Host.IsPatron {
		b.WriteString(" patron")
	}
	if es.Host.IsMentor {
		b.WriteString(" mentor")
	}

	if es.Session.HostUserID != nil {
		status, err := f.statuses.UserStatus(ctx, *es.Session.HostUserID)
		if err != nil {
			log.Debug("status fetch failed, device annotation omitted",
				logging.KeyUserID, *es.Session.HostUserID,
				logging.KeyError, err,
			)
		} else {
			b.WriteString(" ")
			b.WriteString(status.OutputDevice)
		}
	}
	return b.String()
}

// UserNames renders the de-duplicated participant report across all
// fetched sessions, filtered or not. Headless hosts are service
// accounts, not users, and are excluded; participants with no resolvable
// user id are marked with a leading question mark.
func UserNames(sessions []neosapi.Session) string {
	var names []string
	for i := range sessions {
		for _, u := range sessions[i].HeadedUsers() {
			name := u.Username
			if u.UserID == nil {
				name = "?" + name
			}
			names = append(names, name)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})

	deduped := names[:0]
	for _, name := range names {
		if len(deduped) > 0 && deduped[len(deduped)-1] == name {
			continue
		}
		deduped = append(deduped, name)
	}
	return strings.Join(deduped, "\n")
}

// RegistrationStamp renders a cached registration date with second
// precision and an explicit UTC offset.
func RegistrationStamp(entry usercache.AbridgedUser) string {
	return entry.RegistrationDate.UTC().Format("2006-01-02T15:04:05-07:00")
}
