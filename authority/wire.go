package authority

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schema selects the JSON field naming used on the wire.
type Schema string

const (
	// SchemaCanonical uses identifier/secret and subjectId/subjectRole.
	SchemaCanonical Schema = "canonical"
	// SchemaUser uses email/password and userID/userRole.
	SchemaUser Schema = "user"
	// SchemaAccount uses email/password and accountId/accountType.
	SchemaAccount Schema = "account"
)

type wireFields struct {
	identifier  string
	secret      string
	subjectID   string
	subjectRole string
}

var schemaFields = map[Schema]wireFields{
	SchemaCanonical: {identifier: "identifier", secret: "secret", subjectID: "subjectId", subjectRole: "subjectRole"},
	SchemaUser:      {identifier: "email", secret: "password", subjectID: "userID", subjectRole: "userRole"},
	SchemaAccount:   {identifier: "email", secret: "password", subjectID: "accountId", subjectRole: "accountType"},
}

const (
	fieldToken           = "token"
	fieldLastActivity    = "lastActivity"
	fieldTokenExpiration = "tokenExpiration"
)

// Valid reports whether s names a known schema.
func (s Schema) Valid() bool {
	_, ok := schemaFields[s]
	return ok
}

func (s Schema) fields() wireFields {
	if f, ok := schemaFields[s]; ok {
		return f
	}
	return schemaFields[SchemaCanonical]
}

// EncodeCredential renders the credential body for the new-session endpoint.
func (s Schema) EncodeCredential(c Credential) ([]byte, error) {
	f := s.fields()
	return json.Marshal(map[string]string{
		f.identifier: c.Identifier,
		f.secret:     c.Secret,
	})
}

// DecodeResult parses a success body into a ValidationResult. The subject id
// and token are required; everything else is optional. An empty or null body
// is an absent result and wraps ErrRejected.
func (s Schema) DecodeResult(data []byte) (*ValidationResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: no result in success body", ErrRejected)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	f := s.fields()

	subjectID, err := requiredString(raw, f.subjectID)
	if err != nil {
		return nil, err
	}
	token, err := requiredString(raw, fieldToken)
	if err != nil {
		return nil, err
	}
	role, err := optionalString(raw, f.subjectRole)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		SubjectID:       subjectID,
		SubjectRole:     role,
		Token:           token,
		LastActivity:    optionalTime(raw, fieldLastActivity),
		TokenExpiration: optionalTime(raw, fieldTokenExpiration),
	}, nil
}

// lookup matches exact names first, then case-insensitively, because some
// authorities serialise PascalCase property names.
func lookup(raw map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if v, ok := raw[name]; ok {
		return v, true
	}
	for k, v := range raw {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

func requiredString(raw map[string]json.RawMessage, name string) (string, error) {
	opt, err := optionalString(raw, name)
	if err != nil {
		return "", err
	}
	v, ok := opt.Get()
	if !ok || v == "" {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedResult, name)
	}
	return v, nil
}

func optionalString(raw map[string]json.RawMessage, name string) (Optional[string], error) {
	v, ok := lookup(raw, name)
	if !ok || isNull(v) {
		return None[string](), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return None[string](), fmt.Errorf("%w: field %s is not a string", ErrMalformedResult, name)
	}
	return Some(s), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// optionalTime is lenient: timestamps are advisory, so an unparseable value
// is reported as absent rather than failing the whole result.
func optionalTime(raw map[string]json.RawMessage, name string) Optional[time.Time] {
	v, ok := lookup(raw, name)
	if !ok || isNull(v) {
		return None[time.Time]()
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return None[time.Time]()
	}
	t, err := parseTime(s)
	if err != nil {
		return None[time.Time]()
	}
	return Some(t)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognised time format")
}

// DecodeCredential is the authority-side inverse of EncodeCredential.
func (s Schema) DecodeCredential(data []byte) (Credential, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Credential{}, err
	}
	f := s.fields()
	identifier, err := optionalString(raw, f.identifier)
	if err != nil {
		return Credential{}, err
	}
	secret, err := optionalString(raw, f.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Identifier: identifier.OrElse(""),
		Secret:     secret.OrElse(""),
	}, nil
}

// EncodeResult renders a result the way an authority using this schema would.
// Absent optional fields are omitted.
func (s Schema) EncodeResult(r ValidationResult) ([]byte, error) {
	f := s.fields()
	out := map[string]any{
		f.subjectID: r.SubjectID,
		fieldToken:  r.Token,
	}
	if role, ok := r.SubjectRole.Get(); ok {
		out[f.subjectRole] = role
	}
	if t, ok := r.LastActivity.Get(); ok {
		out[fieldLastActivity] = t.UTC().Format(time.RFC3339Nano)
	}
	if t, ok := r.TokenExpiration.Get(); ok {
		out[fieldTokenExpiration] = t.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}
