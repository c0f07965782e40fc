package session

import "sort"

// Values is the mutable attribute set of one session.
type Values interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Clear()
	Keys() []string
}

// Session is the in-request copy of a stored session. It is not safe for
// concurrent use; one request owns it.
type Session struct {
	id     string
	values map[string]string
	isNew  bool
	dirty  bool
}

// NewMemoryValues returns a detached session, useful where no store is involved.
func NewMemoryValues() *Session {
	return newSession("", nil, true)
}

func newSession(id string, values map[string]string, isNew bool) *Session {
	if values == nil {
		values = make(map[string]string)
	}
	return &Session{id: id, values: values, isNew: isNew}
}

// ID returns the opaque session id.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was created during this request.
func (s *Session) IsNew() bool { return s.isNew }

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

func (s *Session) Clear() {
	if len(s.values) == 0 {
		return
	}
	s.values = make(map[string]string)
	s.dirty = true
}

// Keys returns the attribute names in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of attributes.
func (s *Session) Len() int { return len(s.values) }

func (s *Session) snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Session) markClean() {
	s.dirty = false
	s.isNew = false
}
