// Package devstub runs a local stand-in for the voice backend so the client
// can be exercised end to end without real infrastructure. It authenticates
// the bearer token, drives a scripted or Gemini-backed agent over the
// conversation channel, and simulates a matchmaking queue that ends in a
// match_found handoff.
package devstub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/internal/auth"
	"github.com/vortexhq/vortex-voice/internal/protocol"
)

const (
	// transcriptEvery triggers a synthetic transcript once enough audio
	// chunks have arrived, roughly every two seconds of captured speech.
	transcriptEvery = 100

	audioFragmentSize = 4800
)

// Server is the development backend serving both WebSocket channels
type Server struct {
	echo     *echo.Echo
	agent    ReplyGenerator
	secret   []byte
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a development backend with the given signing secret
func NewServer(secret []byte, agent ReplyGenerator, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		agent:  agent,
		secret: secret,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ws/conversation", s.handleConversation)
	e.GET("/ws/matchmaking", s.handleMatchmaking)
	return s
}

// Start serves until Shutdown is called
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// conversationConn tracks per-connection state of the conversation channel
type conversationConn struct {
	server        *Server
	conn          *websocket.Conn
	logger        *zap.Logger
	authenticated bool
	started       bool
	chunks        int
	turn          int
}

func (s *Server) handleConversation(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	cc := &conversationConn{
		server: s,
		conn:   conn,
		logger: s.logger.With(zap.String("channel", "conversation")),
	}
	cc.logger.Info("Conversation channel connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			cc.logger.Info("Conversation channel closed", zap.Error(err))
			return nil
		}
		if err := cc.handle(c.Request().Context(), raw); err != nil {
			cc.logger.Warn("Failed to handle message", zap.Error(err))
		}
	}
}

func (cc *conversationConn) handle(ctx context.Context, raw []byte) error {
	var envelope struct {
		Type     protocol.Kind `json:"type"`
		Token    string        `json:"token"`
		Text     string        `json:"text"`
		Language string        `json:"language"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return cc.sendError("invalid_json", "message is not valid JSON")
	}

	switch envelope.Type {
	case protocol.KindAuth:
		claims, err := auth.ValidateToken(cc.server.secret, envelope.Token)
		if err != nil {
			cc.logger.Warn("Rejected auth token", zap.Error(err))
			return cc.sendError("auth_failed", "invalid bearer token")
		}
		cc.authenticated = true
		cc.logger.Info("Authenticated", zap.String("user_id", claims.UserID))
		return cc.send(map[string]interface{}{
			"type":      protocol.KindAuthenticated,
			"user_id":   claims.UserID,
			"timestamp": protocol.Timestamp(),
		})

	case protocol.KindStartSession:
		if !cc.authenticated {
			return cc.sendError("not_authenticated", "authenticate before starting a session")
		}
		cc.started = true
		return cc.send(map[string]interface{}{
			"type":      protocol.KindSessionStarted,
			"timestamp": protocol.Timestamp(),
		})

	case protocol.KindUserMessage:
		if !cc.started {
			return cc.sendError("no_session", "start a session first")
		}
		return cc.respond(ctx, envelope.Text)

	case protocol.KindAudioChunk:
		if !cc.started {
			return nil
		}
		cc.chunks++
		// Real speech recognition lives upstream. Here a fixed amount of
		// captured audio stands in for a finished utterance.
		if cc.chunks%transcriptEvery == 0 {
			cc.turn++
			prompt := "The user has been speaking for a while. Keep the conversation going."
			if err := cc.send(map[string]interface{}{
				"type":      protocol.KindTranscriptFinal,
				"text":      "(simulated utterance)",
				"timestamp": protocol.Timestamp(),
			}); err != nil {
				return err
			}
			return cc.respond(ctx, prompt)
		}
		return nil

	default:
		cc.logger.Debug("Ignoring message", zap.String("type", string(envelope.Type)))
		return nil
	}
}

// respond streams one full agent turn: response_started, text deltas, audio
// fragments, then response_done.
func (cc *conversationConn) respond(ctx context.Context, prompt string) error {
	reply, err := cc.server.agent.Reply(ctx, prompt)
	if err != nil {
		cc.logger.Warn("Agent reply failed", zap.Error(err))
		reply = "Sorry, I lost my train of thought. Could you say that again?"
	}

	if err := cc.send(map[string]interface{}{
		"type":      protocol.KindResponseStarted,
		"timestamp": protocol.Timestamp(),
	}); err != nil {
		return err
	}

	for _, delta := range splitDeltas(reply, 24) {
		if err := cc.send(map[string]interface{}{
			"type":      protocol.KindResponseTextDelta,
			"delta":     delta,
			"timestamp": protocol.Timestamp(),
		}); err != nil {
			return err
		}
	}

	pcm := synthesizeSpeech(reply)
	for offset := 0; offset < len(pcm); offset += audioFragmentSize {
		end := offset + audioFragmentSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := cc.send(map[string]interface{}{
			"type":       protocol.KindResponseAudio,
			"audio_data": base64.StdEncoding.EncodeToString(pcm[offset:end]),
			"timestamp":  protocol.Timestamp(),
		}); err != nil {
			return err
		}
	}

	return cc.send(map[string]interface{}{
		"type":      protocol.KindResponseDone,
		"timestamp": protocol.Timestamp(),
	})
}

func (cc *conversationConn) send(body map[string]interface{}) error {
	return cc.conn.WriteJSON(body)
}

func (cc *conversationConn) sendError(code, message string) error {
	return cc.send(map[string]interface{}{
		"type":      protocol.KindError,
		"code":      code,
		"message":   message,
		"timestamp": protocol.Timestamp(),
	})
}

// splitDeltas breaks a reply into streaming-sized text deltas
func splitDeltas(text string, size int) []string {
	var deltas []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		deltas = append(deltas, string(runes[start:end]))
	}
	return deltas
}
