package session

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is the session payload returned by the API on successful authentication.
//
// Records are replaced wholesale, never patched. Callers that receive a *Record from the
// manager or a store must treat it as read-only.
type Record struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.User = r.User.clone()
	return &out
}

// User is the application-defined profile carried inside a [Record].
//
// Known fields are decoded into struct fields; anything else the API sends is kept in
// Extra so that a save/load cycle never drops data.
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Extra     map[string]json.RawMessage

	numericID bool
}

var userKnownFields = [...]string{"id", "email", "firstName", "lastName"}

func (u User) clone() User {
	out := u
	if u.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(u.Extra))
		for k, v := range u.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// DisplayName returns the full name when present, falling back to the email.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// MarshalJSON implements json.Marshaler.
func (u User) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(u.Extra)+len(userKnownFields))
	for k, v := range u.Extra {
		fields[k] = v
	}

	if u.ID != "" {
		if u.numericID {
			fields["id"] = json.RawMessage(u.ID)
		} else {
			raw, err := json.Marshal(u.ID)
			if err != nil {
				return nil, err
			}
			fields["id"] = raw
		}
	}
	for name, value := range map[string]string{
		"email":     u.Email,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
	} {
		if value == "" {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		fields[name] = raw
	}

	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler. The id field may be a JSON string or number.
func (u *User) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*u = User{}
	if raw, ok := fields["id"]; ok {
		id, numeric, err := decodeID(raw)
		if err != nil {
			return err
		}
		u.ID, u.numericID = id, numeric
	}
	for name, dst := range map[string]*string{
		"email":     &u.Email,
		"firstName": &u.FirstName,
		"lastName":  &u.LastName,
	} {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return err
		}
	}

	for _, name := range userKnownFields {
		delete(fields, name)
	}
	if len(fields) > 0 {
		u.Extra = fields
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", false, err
	}
	return n.String(), true, nil
}
