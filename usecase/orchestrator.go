package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
	"github.com/vortexhq/vortex-voice/internal/auth"
	"github.com/vortexhq/vortex-voice/internal/capture"
	"github.com/vortexhq/vortex-voice/internal/playback"
)

// Events aggregates every observer surface a presentation layer implements
type Events interface {
	ConversationEvents
	MatchmakingEvents

	// OnSpeakingChanged reports the synthesized-speech playback indicator.
	OnSpeakingChanged(speaking bool)
}

// Config holds the orchestrator's connection and session parameters
type Config struct {
	ConversationURL string
	MatchmakingURL  string
	Language        string
	Topic           string
	Hashtags        []string
}

// Orchestrator wires the capture pipeline, both channels, and playback into
// one conversation attempt. Credentials and session context are injected at
// construction time.
type Orchestrator struct {
	config       Config
	session      *entities.Session
	conversation *ConversationService
	matchmaking  *MatchmakingService
	capture      *capture.Converter
	playback     *playback.Queue
	input        repositories.AudioInput
	output       repositories.AudioOutput
	logger       *zap.Logger

	cleanupOnce sync.Once
}

// NewOrchestrator builds the full voice-conversation subsystem for one
// session attempt.
func NewOrchestrator(
	credential auth.Credential,
	config Config,
	input repositories.AudioInput,
	output repositories.AudioOutput,
	events Events,
	logger *zap.Logger,
) *Orchestrator {
	session := entities.NewSession(credential.UserID, config.Topic, config.Hashtags, credential.Token)
	playbackQueue := playback.NewQueue(output, events.OnSpeakingChanged, logger)
	conversation := NewConversationService(session, playbackQueue, events, config.Language, logger)
	converter := capture.NewConverter(input, config.Language, conversation.sendAudio, logger)
	conversation.SetCapture(converter)
	matchmaking := NewMatchmakingService(credential.UserID, events, logger)

	return &Orchestrator{
		config:       config,
		session:      session,
		conversation: conversation,
		matchmaking:  matchmaking,
		capture:      converter,
		playback:     playbackQueue,
		input:        input,
		output:       output,
		logger:       logger,
	}
}

// Session returns the session this orchestrator drives
func (o *Orchestrator) Session() *entities.Session {
	return o.session
}

// Conversation returns the conversation service
func (o *Orchestrator) Conversation() *ConversationService {
	return o.conversation
}

// Matchmaking returns the matchmaking service
func (o *Orchestrator) Matchmaking() *MatchmakingService {
	return o.matchmaking
}

// Start connects both channels. The conversation channel authenticates and
// begins the AI session; the matchmaking channel starts streaming queue
// updates independently.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	if err := o.conversation.Connect(ctx, o.config.ConversationURL); err != nil {
		return err
	}
	if err := o.matchmaking.Connect(ctx, o.config.MatchmakingURL); err != nil {
		o.conversation.Close()
		return err
	}

	o.logger.Info("Voice session started",
		zap.String("sessionID", o.session.ID),
		zap.String("topic", o.config.Topic))
	return nil
}

// SetMuted toggles the microphone mute gate
func (o *Orchestrator) SetMuted(muted bool) {
	o.capture.SetMuted(muted)
}

// SendUserMessage triggers an agent turn from typed text
func (o *Orchestrator) SendUserMessage(text string) error {
	return o.conversation.SendUserMessage(text)
}

// Cleanup stops capture, flushes and stops playback, closes both channels,
// and releases the hardware audio resources. Safe to invoke from any state
// and any number of times; all effects are visible once it returns.
func (o *Orchestrator) Cleanup() {
	o.cleanupOnce.Do(func() {
		o.capture.Stop()
		o.conversation.Close()
		o.matchmaking.Close()
		o.playback.Close()
		if err := o.input.Close(); err != nil {
			o.logger.Warn("Failed to release audio input", zap.Error(err))
		}
		if err := o.output.Close(); err != nil {
			o.logger.Warn("Failed to release audio output", zap.Error(err))
		}
		o.logger.Info("Voice session cleaned up", zap.String("sessionID", o.session.ID))
	})
}
