/*
Package identity is the identity collaborator boundary.

PURPOSE:
  The ledger core never authenticates anyone; it only needs to know
  whether a caller identity currently exists and to hear about sign-in/
  sign-out transitions. This package defines that contract and ships an
  in-memory provider for tests, dev servers, and single-user deployments.

SEE ALSO:
  - account/watcher.go: Consumes the session stream for lifecycle
    classification
*/
package identity

import "sync"

// Session is one element of the sign-in/sign-out stream. A zero UserID
// with Present == false means signed out.
type Session struct {
	UserID  string
	Present bool
}

// Provider exposes the current identity and a change stream.
type Provider interface {
	// Current returns the signed-in user id, or ok == false when signed out.
	Current() (id string, ok bool)

	// Subscribe delivers the current session first, then every transition,
	// until the cancel func runs. The channel is closed after cancel.
	Subscribe() (<-chan Session, func())
}

// =============================================================================
// STATIC PROVIDER - In-memory identity for tests and dev
// =============================================================================

// Static is an in-memory Provider driven by SignIn/SignOut calls.
type Static struct {
	mu      sync.Mutex
	session Session
	next    int
	subs    map[int]chan Session
}

func NewStatic() *Static {
	return &Static{subs: make(map[int]chan Session)}
}

func (s *Static) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.UserID, s.session.Present
}

func (s *Static) Subscribe() (<-chan Session, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Session, 8)
	ch <- s.session
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (s *Static) SignIn(userID string) {
	s.set(Session{UserID: userID, Present: true})
}

func (s *Static) SignOut() {
	s.set(Session{})
}

func (s *Static) set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	for _, ch := range s.subs {
		select {
		case ch <- sess:
		default:
			// Slow subscriber: drop the oldest, keep the latest transition.
			select {
			case <-ch:
			default:
			}
			ch <- sess
		}
	}
}
