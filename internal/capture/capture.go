// Package capture taps the hardware audio input, converts delivered buffers
// to the protocol's required PCM format, and forwards them as audio_chunk
// messages while capture is authorized.
package capture

import (
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
	"github.com/vortexhq/vortex-voice/internal/protocol"
)

// Converter captures raw microphone buffers, converts each to 16-bit mono
// 24 kHz PCM, and emits encoded chunks through the send function. Chunks are
// emitted only while all three gates hold: the session is active, input is
// not muted, and capture is enabled (started).
type Converter struct {
	input    repositories.AudioInput
	target   entities.AudioFormat
	language string
	send     func(payload []byte)
	logger   *zap.Logger

	capturing     atomic.Bool
	sessionActive atomic.Bool
	muted         atomic.Bool
	sequence      atomic.Int64

	mu      sync.Mutex
	started bool
}

// NewConverter creates a capture converter targeting the agent's fixed format
func NewConverter(input repositories.AudioInput, language string, send func(payload []byte), logger *zap.Logger) *Converter {
	return &Converter{
		input:    input,
		target:   entities.TargetFormat,
		language: language,
		send:     send,
		logger:   logger,
	}
}

// Start begins tapping the hardware input. A hardware engine start failure is
// returned to the caller and leaves capturing disabled.
func (c *Converter) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if err := c.input.Start(c.onBuffer); err != nil {
		return fmt.Errorf("failed to start audio input: %w", err)
	}
	c.started = true
	c.capturing.Store(true)
	c.logger.Info("Audio capture started",
		zap.Int("sourceSampleRate", c.input.Format().SampleRate),
		zap.Int("targetSampleRate", c.target.SampleRate))
	return nil
}

// Stop halts the hardware tap and resets sequencing. Safe to call when not
// started.
func (c *Converter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.capturing.Store(false)
	if err := c.input.Stop(); err != nil {
		c.logger.Error("Failed to stop audio input", zap.Error(err))
	}
	c.started = false
	c.sequence.Store(0)
	c.logger.Info("Audio capture stopped")
}

// SetSessionActive gates emission on the conversation session state
func (c *Converter) SetSessionActive(active bool) {
	c.sessionActive.Store(active)
}

// SetMuted gates emission on the user's mute toggle
func (c *Converter) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports the current mute toggle
func (c *Converter) Muted() bool {
	return c.muted.Load()
}

// Capturing reports whether the hardware tap is running
func (c *Converter) Capturing() bool {
	return c.capturing.Load()
}

// onBuffer runs on the device's capture thread for every delivered buffer.
// Gates are evaluated per buffer, so toggling any gate takes effect within
// one capture cycle.
func (c *Converter) onBuffer(samples []byte) {
	if !c.capturing.Load() || !c.sessionActive.Load() || c.muted.Load() {
		return
	}

	converted, err := Convert(samples, c.input.Format(), c.target)
	if err != nil {
		c.logger.Error("Dropping unconvertible capture buffer",
			zap.Int("size", len(samples)),
			zap.Error(err))
		return
	}

	seq := c.sequence.Add(1) - 1
	payload, err := protocol.NewAudioChunkMessage(
		base64.StdEncoding.EncodeToString(converted),
		c.language,
		seq,
	)
	if err != nil {
		c.logger.Error("Failed to encode audio chunk", zap.Error(err))
		return
	}
	c.send(payload)
}
