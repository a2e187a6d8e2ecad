package usercache

import (
	"encoding/json"
	"time"
)

// Timestamp is a time.Time that persists as RFC 3339 with second
// precision. Serializing an entry and reloading it yields the exact same
// bytes, which keeps the cache file stable across rewrites.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05Z07:00"))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
