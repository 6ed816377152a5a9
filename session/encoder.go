package session

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNilRecord is returned when a nil record is passed to Encode.
	ErrNilRecord = errors.New("nil session record")
	// ErrMalformedRecord is returned by Decode for blobs that are not a usable record.
	ErrMalformedRecord = errors.New("malformed session record")
)

// Encode serializes r into the JSON form persisted under [Key].
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, ErrNilRecord
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return nil, ErrMalformedRecord
	}
	return json.Marshal(r)
}

// Decode parses a persisted record. Any blob that is not a JSON object carrying a
// non-empty access token yields ErrMalformedRecord.
func Decode(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrMalformedRecord
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Join(ErrMalformedRecord, err)
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return nil, ErrMalformedRecord
	}
	return &r, nil
}
