package access

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// ErrSessionEnded is returned for a session that has signed out. Its token
// may still be unexpired, so the id is remembered for revokeTTL.
var ErrSessionEnded = errors.New("session has signed out")

const defaultRevokeTTL = 24 * time.Hour

const userSessionPrefix = "user:"

// UserSessionID is the session id given to a token that carries none. It is
// shared by every such token of the user, so signing out never revokes it.
func UserSessionID(userID string) string {
	return userSessionPrefix + userID
}

type EventType int

const (
	SignedIn EventType = iota + 1
	SignedOut
)

func (t EventType) String() string {
	switch t {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType
	User domain.User
	// LastSession is set on SignedOut when the user has no session left.
	LastSession bool
}

// Sessions is the authoritative set of signed-in sessions. Listeners are
// told about every sign-in and sign-out outside the lock, so they may call
// back into Sessions.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]domain.User
	perUser  map[string]int
	revoked  map[string]time.Time
	subs     map[int]func(Event)
	nextSub  int

	revokeTTL time.Duration
	now       func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions:  make(map[string]domain.User),
		perUser:   make(map[string]int),
		revoked:   make(map[string]time.Time),
		subs:      make(map[int]func(Event)),
		revokeTTL: defaultRevokeTTL,
		now:       time.Now,
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Sessions) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// SignIn records the session. A session already known is only refreshed.
func (s *Sessions) SignIn(user domain.User) error {
	s.mu.Lock()
	if _, ok := s.revoked[user.SessionID]; ok {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	_, known := s.sessions[user.SessionID]
	s.sessions[user.SessionID] = user
	if !known {
		s.perUser[user.ID]++
	}
	s.mu.Unlock()

	if !known {
		s.notify(Event{Type: SignedIn, User: user})
	}
	return nil
}

// SignOut forgets the session and reports whether it was signed in.
func (s *Sessions) SignOut(sessionID string) bool {
	s.mu.Lock()
	user, ok := s.sessions[sessionID]
	last := false
	if ok {
		delete(s.sessions, sessionID)
		s.perUser[user.ID]--
		if s.perUser[user.ID] <= 0 {
			delete(s.perUser, user.ID)
			last = true
		}
	}
	now := s.now()
	if !strings.HasPrefix(sessionID, userSessionPrefix) {
		s.revoked[sessionID] = now
	}
	for sid, at := range s.revoked {
		if now.Sub(at) > s.revokeTTL {
			delete(s.revoked, sid)
		}
	}
	s.mu.Unlock()

	if ok {
		s.notify(Event{Type: SignedOut, User: user, LastSession: last})
	}
	return ok
}

func (s *Sessions) Lookup(sessionID string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.sessions[sessionID]
	return u, ok
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Sessions) notify(ev Event) {
	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
