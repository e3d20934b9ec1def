package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a conversation session
type SessionState string

const (
	SessionStateDisconnected  SessionState = "disconnected"
	SessionStateConnecting    SessionState = "connecting"
	SessionStateConnected     SessionState = "connected"
	SessionStateAuthenticated SessionState = "authenticated"
	SessionStateActive        SessionState = "active"
	SessionStateClosed        SessionState = "closed"
)

// legalTransitions lists the forward transitions of the session state machine.
// Any state may additionally transition to SessionStateClosed.
var legalTransitions = map[SessionState][]SessionState{
	SessionStateDisconnected:  {SessionStateConnecting},
	SessionStateConnecting:    {SessionStateConnected},
	SessionStateConnected:     {SessionStateAuthenticated},
	SessionStateAuthenticated: {SessionStateActive},
	SessionStateActive:        {},
	SessionStateClosed:        {},
}

// ErrIllegalTransition is returned when a session state transition is not allowed
var ErrIllegalTransition = errors.New("illegal session state transition")

// Session represents one AI voice-conversation attempt tied to a matching context
type Session struct {
	ID          string
	UserID      string
	Topic       string
	Hashtags    []string
	BearerToken string
	State       SessionState
	CreatedAt   time.Time
}

// NewSession creates a new session in the disconnected state
func NewSession(userID, topic string, hashtags []string, bearerToken string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Topic:       topic,
		Hashtags:    hashtags,
		BearerToken: bearerToken,
		State:       SessionStateDisconnected,
		CreatedAt:   time.Now(),
	}
}

// Transition moves the session to the given state, enforcing the state machine.
// Transitioning to SessionStateClosed is allowed from any state.
func (s *Session) Transition(to SessionState) error {
	if to == SessionStateClosed {
		s.State = SessionStateClosed
		return nil
	}
	for _, next := range legalTransitions[s.State] {
		if next == to {
			s.State = to
			return nil
		}
	}
	return ErrIllegalTransition
}

// IsActive reports whether the session has an active conversation
func (s *Session) IsActive() bool {
	return s.State == SessionStateActive
}

// IsClosed reports whether the session has been terminated
func (s *Session) IsClosed() bool {
	return s.State == SessionStateClosed
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.UserID == "" {
		return errors.New("user id is required")
	}
	if s.BearerToken == "" {
		return errors.New("bearer token is required")
	}
	return nil
}
