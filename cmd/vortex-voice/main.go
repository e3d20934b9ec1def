package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/adapters/audio"
	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/internal/auth"
	"github.com/vortexhq/vortex-voice/internal/config"
	"github.com/vortexhq/vortex-voice/internal/devstub"
	"github.com/vortexhq/vortex-voice/usecase"
)

func main() {
	userID := flag.String("user", "dev-user", "user id for the voice session")
	displayName := flag.String("name", "Dev User", "display name shown to matched participants")
	dev := flag.Bool("dev", false, "also run the local development backend")
	mute := flag.Bool("mute", false, "start with the microphone muted")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	if *dev {
		startDevBackend(cfg, logger)
	}

	credential, err := auth.NewCredential([]byte(cfg.JWTSecret), *userID, *displayName, time.Hour)
	if err != nil {
		logger.Fatal("Failed to issue credential", zap.Error(err))
	}

	input, err := audio.NewMalgoInput(logger)
	if err != nil {
		logger.Fatal("Failed to open microphone", zap.Error(err))
	}
	output, err := audio.NewOtoOutput(logger)
	if err != nil {
		logger.Fatal("Failed to open speaker", zap.Error(err))
	}

	orchestrator := usecase.NewOrchestrator(
		credential,
		usecase.Config{
			ConversationURL: cfg.ConversationURL,
			MatchmakingURL:  cfg.MatchmakingURL,
			Language:        cfg.Language,
			Topic:           cfg.Topic,
			Hashtags:        cfg.Hashtags,
		},
		input,
		output,
		&consoleEvents{logger: logger},
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orchestrator.Start(ctx); err != nil {
		orchestrator.Cleanup()
		logger.Fatal("Failed to start voice session", zap.Error(err))
	}

	if *mute {
		orchestrator.SetMuted(true)
	}

	logger.Info("Talking to the companion, waiting for a match. Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	orchestrator.Cleanup()
}

func startDevBackend(cfg config.Config, logger *zap.Logger) {
	var agent devstub.ReplyGenerator
	if cfg.GeminiAPIKey != "" {
		gemini, err := devstub.NewGeminiAgent(context.Background(), cfg.GeminiAPIKey, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini agent", zap.Error(err))
		}
		agent = gemini
	} else {
		logger.Info("GEMINI_API_KEY not set, using scripted replies")
		agent = devstub.NewScriptedAgent()
	}

	server := devstub.NewServer([]byte(cfg.JWTSecret), agent, logger)
	go func() {
		if err := server.Start(cfg.DevListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Development backend stopped", zap.Error(err))
		}
	}()

	// Give the stub a moment to bind before the client dials it.
	time.Sleep(200 * time.Millisecond)
}

// consoleEvents logs session events for the terminal client
type consoleEvents struct {
	logger *zap.Logger
}

var _ usecase.Events = (*consoleEvents)(nil)

func (e *consoleEvents) OnStateChanged(state entities.SessionState) {
	e.logger.Info("Session state changed", zap.String("state", string(state)))
}

func (e *consoleEvents) OnAssistantText(text string) {
	e.logger.Info("Companion", zap.String("text", text))
}

func (e *consoleEvents) OnSessionEnded(err error) {
	if err != nil {
		e.logger.Warn("Conversation ended", zap.Error(err))
		return
	}
	e.logger.Info("Conversation ended")
}

func (e *consoleEvents) OnSpeakingChanged(speaking bool) {
	e.logger.Debug("Speaking indicator", zap.Bool("speaking", speaking))
}

func (e *consoleEvents) OnQueueUpdate(position int, estimatedWaitSecs float64) {
	e.logger.Info("Queue update",
		zap.Int("position", position),
		zap.Float64("estimatedWaitSecs", estimatedWaitSecs))
}

func (e *consoleEvents) OnMatchFound(record entities.MatchRecord) {
	e.logger.Info("Match found, ready to join the call",
		zap.String("matchID", record.MatchID),
		zap.String("roomID", record.RoomID),
		zap.Int("participants", len(record.Participants)))
}

func (e *consoleEvents) OnMatchmakingClosed(err error) {
	if err != nil {
		e.logger.Warn("Matchmaking channel closed", zap.Error(err))
		return
	}
	e.logger.Info("Matchmaking channel closed")
}
