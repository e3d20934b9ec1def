package devstub

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/internal/protocol"
)

const (
	initialQueuePosition = 3
	queueTick            = 2 * time.Second
	heartbeatInterval    = 15 * time.Second
)

func (s *Server) handleMatchmaking(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = "anonymous"
	}
	logger := s.logger.With(
		zap.String("channel", "matchmaking"),
		zap.String("user_id", userID),
	)
	logger.Info("Matchmaking channel connected")

	// Drain pongs and anything else the client sends; the read loop also
	// detects disconnects so the write side can stop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(body map[string]interface{}) bool {
		if err := conn.WriteJSON(body); err != nil {
			logger.Info("Matchmaking channel closed", zap.Error(err))
			return false
		}
		return true
	}

	if !send(map[string]interface{}{
		"type":      protocol.KindWelcome,
		"message":   "searching for a room",
		"timestamp": protocol.Timestamp(),
	}) {
		return nil
	}

	position := initialQueuePosition
	queue := time.NewTicker(queueTick)
	defer queue.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return nil

		case <-heartbeat.C:
			if !send(map[string]interface{}{
				"type":      protocol.KindPing,
				"timestamp": protocol.Timestamp(),
			}) {
				return nil
			}

		case <-queue.C:
			if position > 0 {
				if !send(map[string]interface{}{
					"type":           protocol.KindQueueUpdate,
					"position":       position,
					"estimated_wait": float64(position) * queueTick.Seconds(),
					"timestamp":      protocol.Timestamp(),
				}) {
					return nil
				}
				position--
				continue
			}

			send(map[string]interface{}{
				"type":       protocol.KindMatchFound,
				"match_id":   uuid.New().String(),
				"session_id": uuid.New().String(),
				"room_id":    uuid.New().String(),
				"call_token": uuid.New().String(),
				"participants": []map[string]interface{}{
					{"user_id": userID, "display_name": userID, "is_current_user": true},
					{"user_id": "stub-peer", "display_name": "Sam"},
				},
				"topics":    []string{"smalltalk"},
				"hashtags":  []string{"#dev"},
				"timestamp": protocol.Timestamp(),
			})
			logger.Info("Match dispatched")
			// Keep the connection open until the client hangs up.
			queue.Stop()
		}
	}
}
