// Package usecase orchestrates the AI conversation and matchmaking channels
// over the capture and playback pipelines.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/internal/capture"
	"github.com/vortexhq/vortex-voice/internal/channel"
	"github.com/vortexhq/vortex-voice/internal/playback"
	"github.com/vortexhq/vortex-voice/internal/protocol"
)

// ErrNotConnected is returned for outbound operations before Connect
var ErrNotConnected = errors.New("channel not connected")

// Channel is the outbound surface of a connected channel
type Channel interface {
	Send(payload []byte)
	Close()
}

// ConversationEvents is the typed observer notified of conversation progress.
// Callbacks are invoked from channel dispatch goroutines and must not call
// back into the service.
type ConversationEvents interface {
	// OnStateChanged reports each session state transition.
	OnStateChanged(state entities.SessionState)

	// OnAssistantText reports the running response text after each delta.
	OnAssistantText(text string)

	// OnSessionEnded reports that the conversation is over. err is nil for a
	// local close and carries the transport error otherwise.
	OnSessionEnded(err error)
}

// ConversationService drives the ordered conversation channel and the session
// state machine shared with the capture pipeline. Inbound messages are
// dispatched in strict arrival order from the channel's read goroutine.
type ConversationService struct {
	session  *entities.Session
	capture  *capture.Converter
	playback *playback.Queue
	events   ConversationEvents
	logger   *zap.Logger
	language string

	mu           sync.Mutex
	ch           Channel
	startSent    bool
	responseText strings.Builder

	teardownOnce sync.Once
}

// NewConversationService creates the conversation orchestration service
func NewConversationService(
	session *entities.Session,
	playbackQueue *playback.Queue,
	events ConversationEvents,
	language string,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		session:  session,
		playback: playbackQueue,
		events:   events,
		language: language,
		logger:   logger,
	}
}

// SetCapture wires the capture converter. Must be called before Connect.
func (s *ConversationService) SetCapture(converter *capture.Converter) {
	s.capture = converter
}

// Connect dials the conversation endpoint and emits the auth message once
// the transport opens. There is no automatic reconnect.
func (s *ConversationService) Connect(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil {
		return fmt.Errorf("conversation already connected")
	}
	if err := s.transitionLocked(entities.SessionStateConnecting); err != nil {
		return err
	}

	ch, err := channel.Dial(ctx, endpoint, channel.KindConversation, s, s.logger)
	if err != nil {
		s.transitionLocked(entities.SessionStateClosed)
		return fmt.Errorf("failed to connect conversation channel: %w", err)
	}
	s.ch = ch
	s.transitionLocked(entities.SessionStateConnected)

	payload, err := protocol.NewAuthMessage(s.session.BearerToken)
	if err != nil {
		return fmt.Errorf("failed to build auth message: %w", err)
	}
	ch.Send(payload)
	return nil
}

// State reports the current session state
func (s *ConversationService) State() entities.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.State
}

// ResponseText reports the running response-text buffer
func (s *ConversationService) ResponseText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responseText.String()
}

// SendUserMessage triggers an agent turn from typed text
func (s *ConversationService) SendUserMessage(text string) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	payload, err := protocol.NewUserMessage(text)
	if err != nil {
		return fmt.Errorf("failed to build user message: %w", err)
	}
	ch.Send(payload)
	return nil
}

// SetMuted toggles the capture mute gate
func (s *ConversationService) SetMuted(muted bool) {
	if s.capture != nil {
		s.capture.SetMuted(muted)
	}
}

// Close ends the conversation and tears down capture and playback. Safe to
// call from any state, any number of times.
func (s *ConversationService) Close() {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
		return // teardown runs via HandleClosed
	}
	s.teardown(nil)
}

// sendAudio forwards an encoded audio chunk; used as the capture converter's
// send function. Drops silently when the channel is gone, matching the
// fire-and-forget send model.
func (s *ConversationService) sendAudio(payload []byte) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch != nil {
		ch.Send(payload)
	}
}

// HandleMessage dispatches one inbound message. Invoked by the channel in
// strict arrival order.
func (s *ConversationService) HandleMessage(data []byte) {
	msg, err := protocol.ParseInbound(data)
	if err != nil {
		s.logger.Warn("Discarding undecodable conversation message", zap.Error(err))
		return
	}

	switch msg.Kind {
	case protocol.KindAuthenticated:
		s.handleAuthenticated()

	case protocol.KindSessionStarted:
		s.handleSessionStarted()

	case protocol.KindTranscriptPartial:
		s.logger.Debug("Interim transcript", zap.String("text", msg.Text))

	case protocol.KindTranscriptFinal:
		s.mu.Lock()
		s.responseText.Reset()
		s.mu.Unlock()
		s.logger.Info("Final transcript", zap.String("text", msg.Text))

	case protocol.KindSpeechStarted, protocol.KindSpeechStopped:
		s.logger.Debug("Speech activity", zap.String("kind", string(msg.Kind)))

	case protocol.KindResponseStarted:
		// A new response supersedes anything queued or playing.
		s.playback.Flush()

	case protocol.KindResponseTextDelta:
		s.mu.Lock()
		s.responseText.WriteString(msg.Text)
		text := s.responseText.String()
		s.mu.Unlock()
		s.events.OnAssistantText(text)

	case protocol.KindResponseAudio:
		s.playback.AddFragment(msg.Audio)

	case protocol.KindResponseDone:
		s.playback.Finalize()

	case protocol.KindError:
		s.logger.Error("Conversation backend error",
			zap.String("code", msg.Err.Code),
			zap.String("message", msg.Err.Message))

	default:
		s.logger.Warn("Ignoring unknown conversation message", zap.String("kind", string(msg.Kind)))
	}
}

// HandleClosed is invoked once when the transport drops or is closed locally
func (s *ConversationService) HandleClosed(err error) {
	s.teardown(err)
}

func (s *ConversationService) handleAuthenticated() {
	s.mu.Lock()
	if s.session.State != entities.SessionStateConnected {
		s.mu.Unlock()
		s.logger.Warn("Ignoring repeat authenticated message",
			zap.String("state", string(s.session.State)))
		return
	}
	s.transitionLocked(entities.SessionStateAuthenticated)

	// Exactly once per connection.
	var payload []byte
	if !s.startSent {
		s.startSent = true
		var err error
		payload, err = protocol.NewStartSessionMessage(s.session.ID, s.session.Topic, s.session.Hashtags, s.language)
		if err != nil {
			s.logger.Error("Failed to build start-session message", zap.Error(err))
			payload = nil
		}
	}
	ch := s.ch
	s.mu.Unlock()

	if payload != nil && ch != nil {
		ch.Send(payload)
	}
}

func (s *ConversationService) handleSessionStarted() {
	s.mu.Lock()
	if err := s.transitionLocked(entities.SessionStateActive); err != nil {
		s.mu.Unlock()
		s.logger.Warn("Ignoring session_started in current state",
			zap.String("state", string(s.session.State)))
		return
	}
	s.mu.Unlock()

	if s.capture == nil {
		return
	}
	s.capture.SetSessionActive(true)
	if err := s.capture.Start(); err != nil {
		s.logger.Error("Audio capture unavailable for session", zap.Error(err))
	}
}

// transitionLocked advances the state machine and notifies the observer.
// Callers hold s.mu.
func (s *ConversationService) transitionLocked(to entities.SessionState) error {
	if err := s.session.Transition(to); err != nil {
		return err
	}
	s.logger.Info("Session state changed", zap.String("state", string(to)))
	if s.events != nil {
		s.events.OnStateChanged(to)
	}
	return nil
}

// teardown stops capture, flushes playback, releases the channel, and moves
// the session to its terminal state. Idempotent.
func (s *ConversationService) teardown(err error) {
	s.teardownOnce.Do(func() {
		if s.capture != nil {
			s.capture.SetSessionActive(false)
			s.capture.Stop()
		}
		if s.playback != nil {
			s.playback.Flush()
		}

		s.mu.Lock()
		if s.ch != nil {
			s.ch.Close()
			s.ch = nil
		}
		s.responseText.Reset()
		s.transitionLocked(entities.SessionStateClosed)
		s.mu.Unlock()

		if err != nil {
			s.logger.Info("Conversation ended", zap.Error(err))
		} else {
			s.logger.Info("Conversation ended")
		}
		if s.events != nil {
			s.events.OnSessionEnded(err)
		}
	})
}
