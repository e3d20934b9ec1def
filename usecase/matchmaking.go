package usecase

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/internal/channel"
	"github.com/vortexhq/vortex-voice/internal/protocol"
)

// MatchmakingEvents is the typed observer notified of matchmaking progress.
// Callbacks are invoked from the channel dispatch goroutine and must not call
// back into the service.
type MatchmakingEvents interface {
	// OnQueueUpdate reports queue position notifications as-is, in arrival
	// order.
	OnQueueUpdate(position int, estimatedWaitSecs float64)

	// OnMatchFound publishes the validated call-ready record. Invoked at
	// most once per session; the consumer enters the live call.
	OnMatchFound(record entities.MatchRecord)

	// OnMatchmakingClosed reports that the matchmaking channel ended.
	OnMatchmakingClosed(err error)
}

// MatchmakingService drives the independent matchmaking channel and performs
// the validated handoff into a live call on match.
type MatchmakingService struct {
	userID string
	events MatchmakingEvents
	logger *zap.Logger

	mu        sync.Mutex
	ch        Channel
	published bool

	closedOnce sync.Once
}

// NewMatchmakingService creates the matchmaking service for a user identity
func NewMatchmakingService(userID string, events MatchmakingEvents, logger *zap.Logger) *MatchmakingService {
	return &MatchmakingService{
		userID: userID,
		events: events,
		logger: logger,
	}
}

// Connect dials the matchmaking endpoint, passing the user identity as a
// query parameter. There is no automatic reconnect.
func (m *MatchmakingService) Connect(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid matchmaking endpoint: %w", err)
	}
	query := u.Query()
	query.Set("user_id", m.userID)
	u.RawQuery = query.Encode()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		return fmt.Errorf("matchmaking already connected")
	}

	ch, err := channel.Dial(ctx, u.String(), channel.KindMatchmaking, m, m.logger)
	if err != nil {
		return fmt.Errorf("failed to connect matchmaking channel: %w", err)
	}
	m.ch = ch
	return nil
}

// Published reports whether a match record has been handed off
func (m *MatchmakingService) Published() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published
}

// Close tears the matchmaking channel down. Idempotent.
func (m *MatchmakingService) Close() {
	m.mu.Lock()
	ch := m.ch
	m.ch = nil
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
		return // close notification runs via HandleClosed
	}
	m.notifyClosed(nil)
}

// HandleMessage dispatches one inbound message in strict arrival order
func (m *MatchmakingService) HandleMessage(data []byte) {
	msg, err := protocol.ParseInbound(data)
	if err != nil {
		m.logger.Warn("Discarding undecodable matchmaking message", zap.Error(err))
		return
	}

	switch {
	case msg.Kind == protocol.KindWelcome:
		m.logger.Info("Matchmaking connection acknowledged")

	case msg.Kind == protocol.KindQueueUpdate || msg.Kind == protocol.KindQueuePositionUpdate:
		m.events.OnQueueUpdate(msg.Queue.Position, msg.Queue.EstimatedWaitSecs)

	case msg.Kind.IsMatchFound():
		m.handleMatchFound(msg.Kind, msg.Match)

	case msg.Kind == protocol.KindPing:
		m.sendPong()

	case msg.Kind == protocol.KindError:
		m.logger.Error("Matchmaking backend error",
			zap.String("code", msg.Err.Code),
			zap.String("message", msg.Err.Message))

	default:
		m.logger.Warn("Ignoring unknown matchmaking message", zap.String("kind", string(msg.Kind)))
	}
}

// HandleClosed is invoked once when the transport drops or is closed locally
func (m *MatchmakingService) HandleClosed(err error) {
	m.notifyClosed(err)
}

// handleMatchFound validates the payload and publishes the record at most
// once per session. All match-found-class kinds route here.
func (m *MatchmakingService) handleMatchFound(kind protocol.Kind, payload *protocol.MatchPayload) {
	record, skipped, err := protocol.BuildMatchRecord(payload)
	if err != nil {
		m.logger.Error("Rejecting invalid match notification",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}
	for _, reason := range skipped {
		m.logger.Warn("Skipping malformed match participant", zap.String("reason", reason))
	}

	m.mu.Lock()
	if m.published {
		m.mu.Unlock()
		m.logger.Warn("Ignoring duplicate match notification",
			zap.String("kind", string(kind)),
			zap.String("matchID", record.MatchID))
		return
	}
	m.published = true
	m.mu.Unlock()

	m.logger.Info("Match found",
		zap.String("matchID", record.MatchID),
		zap.String("roomID", record.RoomID),
		zap.Int("participants", len(record.Participants)))
	m.events.OnMatchFound(record)
}

func (m *MatchmakingService) sendPong() {
	m.mu.Lock()
	ch := m.ch
	m.mu.Unlock()
	if ch == nil {
		return
	}
	payload, err := protocol.NewPongMessage()
	if err != nil {
		m.logger.Error("Failed to build pong", zap.Error(err))
		return
	}
	ch.Send(payload)
}

func (m *MatchmakingService) notifyClosed(err error) {
	m.closedOnce.Do(func() {
		if err != nil {
			m.logger.Info("Matchmaking channel closed", zap.Error(err))
		} else {
			m.logger.Info("Matchmaking channel closed")
		}
		if m.events != nil {
			m.events.OnMatchmakingClosed(err)
		}
	})
}
