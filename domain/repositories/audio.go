package repositories

import (
	"context"

	"github.com/vortexhq/vortex-voice/domain/entities"
)

// AudioInput taps the hardware microphone. Implementations deliver raw
// interleaved PCM buffers in the device's native format through the callback
// registered with Start. The callback runs on the device's capture thread and
// must not block.
type AudioInput interface {
	// Start begins delivering captured buffers. It returns an error if the
	// hardware engine could not be started, in which case no buffers are
	// ever delivered.
	Start(onBuffer func(samples []byte)) error

	// Format reports the native format of buffers delivered by this device.
	Format() entities.AudioFormat

	// Stop halts buffer delivery. Safe to call when not started.
	Stop() error

	// Close releases the hardware resource. The input cannot be restarted.
	Close() error
}

// AudioOutput plays one complete audio buffer at a time. Play blocks until
// the buffer has finished playing, the unit fails to decode, or ctx is
// cancelled.
type AudioOutput interface {
	Play(ctx context.Context, wavData []byte) error
	Close() error
}
