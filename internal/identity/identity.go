// Package identity is the boundary to the authentication system. The engine
// never authenticates anyone itself: it is handed an already-authenticated
// subject and checks it against record owners before every remote call.
package identity

import "sync"

// Provider reports the currently authenticated subject, if any.
type Provider interface {
	Current() (subject string, ok bool)
}

// Session is a Provider whose subject is set on login and cleared on logout.
type Session struct {
	mu      sync.RWMutex
	subject string
}

// NewSession returns a Session with no authenticated subject.
func NewSession() *Session {
	return &Session{}
}

// Set replaces the authenticated subject.
func (s *Session) Set(subject string) {
	s.mu.Lock()
	s.subject = subject
	s.mu.Unlock()
}

// Clear drops the authenticated subject.
func (s *Session) Clear() {
	s.Set("")
}

// Current implements Provider.
func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject, s.subject != ""
}

// Static is a Provider that always reports the same subject. The gateway
// uses it per request once the bearer token has been verified.
type Static string

// Current implements Provider.
func (s Static) Current() (string, bool) {
	return string(s), s != ""
}
