package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotAList is returned when a payload holds neither a list nor an
// envelope with a list field.
var ErrNotAList = errors.New("wire: payload is not a list")

// DecodeList decodes a bare JSON array, or an object that carries the array
// under one of fields (or "data"). Callers treat ErrNotAList as an empty
// result.
func DecodeList[T any](payload []byte, fields ...string) ([]T, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, ErrNotAList
	}

	switch payload[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("wire: decode list: %w", err)
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, fmt.Errorf("wire: decode envelope: %w", err)
		}
		// capped so the append never writes into the caller's array
		for _, f := range append(fields[:len(fields):len(fields)], "data") {
			inner, ok := obj[f]
			if !ok {
				continue
			}
			inner = bytes.TrimSpace(inner)
			if len(inner) == 0 || inner[0] != '[' {
				continue
			}
			var out []T
			if err := json.Unmarshal(inner, &out); err != nil {
				return nil, fmt.Errorf("wire: decode %s: %w", f, err)
			}
			return out, nil
		}
	}
	return nil, ErrNotAList
}

// OnlineUsers decodes a presence snapshot. Entries may be ids or user objects.
func OnlineUsers(payload []byte) ([]string, error) {
	refs, err := DecodeList[UserRef](payload, "users", "onlineUsers")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}
