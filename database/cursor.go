package database

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// LastKey is the position after the final row of a page. Index queries fill
// SubmittedAt and ChurchID; scans only need ID.
type LastKey struct {
	ID          string     `json:"id"`
	ChurchID    string     `json:"churchId,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// EncodeCursor turns a last key into an opaque cursor
func EncodeCursor(key *LastKey) string {
	if key == nil {
		return ""
	}
	b, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeCursor reverses EncodeCursor. Malformed input yields nil rather than
// an error, which callers treat as "start from the beginning".
func DecodeCursor(cursor string) *LastKey {
	if cursor == "" {
		return nil
	}
	b, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		// tolerate clients that re-encode with the standard alphabet
		if b, err = base64.StdEncoding.DecodeString(cursor); err != nil {
			return nil
		}
	}
	var key LastKey
	if err := json.Unmarshal(b, &key); err != nil || key.ID == "" {
		return nil
	}
	return &key
}
