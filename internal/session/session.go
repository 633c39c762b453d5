// Package session holds the per-login context the sync components are built
// from: who the user is and which live resources die with the login.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"chat-sync/internal/conversation"
	"chat-sync/internal/convid"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionClosed  = errors.New("session closed")
)

// Identity is what the client presents at login.
type Identity struct {
	UserID        string `json:"user_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	DisplayName   string `json:"display_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

// Session lives from login to logout.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time

	drafts  *conversation.Drafts
	limiter *rate.Limiter

	mu      sync.Mutex
	profile models.User
	owned   []io.Closer
	closed  bool
	done    chan struct{}
}

func newSession(token string, profile models.User, limiter *rate.Limiter, now time.Time) *Session {
	return &Session{
		Token:     token,
		UserID:    profile.ID,
		CreatedAt: now,
		drafts:    conversation.NewDrafts(),
		limiter:   limiter,
		profile:   profile,
		done:      make(chan struct{}),
	}
}

// Profile is the profile snapshot taken at login, updated by SetProfile.
func (s *Session) Profile() models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) SetProfile(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = u
}

// Drafts is the session's unsent message buffer.
func (s *Session) Drafts() *conversation.Drafts {
	return s.drafts
}

// Limiter throttles the session's writes.
func (s *Session) Limiter() *rate.Limiter {
	return s.limiter
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Own ties c to the session: it is closed at logout. Owning on a closed
// session closes c right away and fails.
func (s *Session) Own(c io.Closer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return ErrSessionClosed
	}
	s.owned = append(s.owned, c)
	s.mu.Unlock()
	return nil
}

// Release forgets c without closing it.
func (s *Session) Release(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, owned := range s.owned {
		if owned == c {
			s.owned = append(s.owned[:i], s.owned[i+1:]...)
			return
		}
	}
}

// Close releases everything the session owns, newest first.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	owned := s.owned
	s.owned = nil
	close(s.done)
	s.mu.Unlock()

	var errs []error
	for i := len(owned) - 1; i >= 0; i-- {
		if err := owned[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.drafts.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Manager creates and destroys sessions.
type Manager struct {
	users repositories.UserRepository
	log   logrus.FieldLogger
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(users repositories.UserRepository, log logrus.FieldLogger, limit float64, burst int) *Manager {
	return &Manager{
		users:    users,
		log:      log,
		limit:    rate.Limit(limit),
		burst:    burst,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Login ensures the user's profile exists and opens a session for it.
func (m *Manager) Login(ctx context.Context, id Identity) (*Session, error) {
	if err := convid.Validate(id.UserID); err != nil {
		return nil, err
	}
	profile, err := m.users.EnsureProfile(ctx, models.User{
		ID:            id.UserID,
		DisplayName:   id.DisplayName,
		Email:         id.Email,
		ProfilePicURL: id.ProfilePicURL,
	})
	if err != nil {
		return nil, err
	}

	sess := newSession(uuid.NewString(), profile, rate.NewLimiter(m.limit, m.burst), m.now())
	m.mu.Lock()
	m.sessions[sess.Token] = sess
	m.mu.Unlock()

	m.log.WithField("user_id", sess.UserID).Info("session opened")
	return sess, nil
}

// Lookup returns the live session of a token.
func (m *Manager) Lookup(token string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[token]
	return sess, ok
}

// Logout ends a session and everything it owns.
func (m *Manager) Logout(token string) error {
	m.mu.Lock()
	sess, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	m.log.WithField("user_id", sess.UserID).Info("session closed")
	return sess.Close()
}

// Close ends every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
