// Package identity supplies the current signed-in identity and session
// lifecycle events. The data stores depend only on the Provider interface;
// the HTTP auth client and the static provider both implement it.
package identity

import "sync"

// Identity is the signed-in principal as the auth subsystem reports it.
// The ID matches the person row keyed to this account in the directory.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider exposes the current identity and session-change notifications.
type Provider interface {
	// CurrentIdentity returns the signed-in identity, or false when no
	// session is active.
	CurrentIdentity() (Identity, bool)

	// OnSessionChange registers fn to be called on every sign-in and
	// sign-out. The returned func cancels the subscription.
	OnSessionChange(fn func(id Identity, signedIn bool)) (cancel func())
}

// Static is a Provider with a fixed identity. Used with the local backend
// and in tests.
type Static struct {
	mu sync.Mutex
	id Identity
	ok bool

	listeners      map[int]func(Identity, bool)
	nextListenerID int
}

// NewStatic returns a provider permanently signed in as id.
func NewStatic(id Identity) *Static {
	return &Static{id: id, ok: true, listeners: make(map[int]func(Identity, bool))}
}

// CurrentIdentity implements Provider.
func (s *Static) CurrentIdentity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.ok
}

// OnSessionChange implements Provider.
func (s *Static) OnSessionChange(fn func(Identity, bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SetIdentity swaps the identity and notifies listeners. Passing ok=false
// simulates sign-out.
func (s *Static) SetIdentity(id Identity, ok bool) {
	s.mu.Lock()
	s.id = id
	s.ok = ok
	fns := make([]func(Identity, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id, ok)
	}
}
