package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
)

// UserRef is a reference to a user. On the wire it is either a bare id or
// an embedded object; both decode to the same canonical ID.
type UserRef struct {
	ID   string
	Name string
}

// Ref builds a reference carrying only an id.
func Ref(id string) UserRef { return UserRef{ID: normalize.UserID(id)} }

// Is reports whether the reference points at id.
func (u UserRef) Is(id string) bool {
	return u.ID != "" && u.ID == normalize.UserID(id)
}

// UnmarshalJSON accepts "id", 123, {"_id": "id"} and {"id": "id"}.
func (u *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*u = UserRef{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		u.ID = normalize.UserID(s)
		return nil
	case '{':
		var obj struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		u.ID = normalize.UserID(obj.ID)
		if u.ID == "" {
			u.ID = normalize.UserID(obj.AltID)
		}
		u.Name = obj.Name
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("wire: unsupported user reference %s", string(b))
		}
		u.ID = n.String()
		return nil
	}
}

// MarshalJSON writes a bare id unless a display name is known.
func (u UserRef) MarshalJSON() ([]byte, error) {
	if u.Name == "" {
		return json.Marshal(u.ID)
	}
	return json.Marshal(struct {
		ID   string `json:"_id"`
		Name string `json:"name"`
	}{u.ID, u.Name})
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads a timestamp in any of the shapes producers send. Numbers
// and digit-only strings are epoch milliseconds. ok is false for missing
// or unparseable input.
func ParseTime(raw json.RawMessage) (t time.Time, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	return ParseTimeString(s)
}

// ParseTimeString is ParseTime for an already unquoted value.
func ParseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
