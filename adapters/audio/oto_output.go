package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/vortexhq/vortex-voice/domain/entities"
	"github.com/vortexhq/vortex-voice/domain/repositories"
	"github.com/vortexhq/vortex-voice/internal/wav"
)

// OtoOutput implements AudioOutput on the system speaker. Units arrive
// WAV-wrapped in the synthesized-speech format (16-bit mono 24 kHz); the
// header is stripped and the raw samples streamed to the device.
type OtoOutput struct {
	ctx    *oto.Context
	logger *zap.Logger
}

var _ repositories.AudioOutput = (*OtoOutput)(nil)

// NewOtoOutput initializes the speaker context for the synthesized format
func NewOtoOutput(logger *zap.Logger) (*OtoOutput, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   entities.TargetFormat.SampleRate,
		ChannelCount: entities.TargetFormat.Channels,
		Format:       oto.FormatSignedInt16LE,
		// 100ms of buffer avoids glitches without noticeable latency.
		BufferSize: 100 * time.Millisecond,
	}

	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready

	return &OtoOutput{ctx: ctx, logger: logger}, nil
}

// Play blocks until the unit finishes, fails, or ctx is cancelled
func (o *OtoOutput) Play(ctx context.Context, wavData []byte) error {
	if len(wavData) < wav.HeaderSize {
		return fmt.Errorf("playback unit too short: %d bytes", len(wavData))
	}
	pcm := wavData[wav.HeaderSize:]
	if len(pcm) == 0 {
		return nil
	}

	player := o.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !player.IsPlaying() {
				return nil
			}
		}
	}
}

// Close releases the speaker. The oto context has no teardown API; playback
// simply stops when the process exits.
func (o *OtoOutput) Close() error {
	return nil
}
