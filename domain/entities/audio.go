package entities

import "fmt"

// SampleEncoding identifies how raw samples are laid out in a capture buffer
type SampleEncoding string

const (
	// EncodingInt16 is 16-bit signed little-endian PCM
	EncodingInt16 SampleEncoding = "s16le"
	// EncodingFloat32 is 32-bit IEEE float little-endian PCM
	EncodingFloat32 SampleEncoding = "f32le"
)

// AudioFormat describes the layout of raw PCM samples. Multi-channel buffers
// are interleaved.
type AudioFormat struct {
	SampleRate int
	Channels   int
	Encoding   SampleEncoding
}

// TargetFormat is the fixed format required by the upstream agent:
// 16-bit signed PCM, mono, 24 kHz.
var TargetFormat = AudioFormat{
	SampleRate: 24000,
	Channels:   1,
	Encoding:   EncodingInt16,
}

// BytesPerSample returns the byte width of one sample in one channel
func (f AudioFormat) BytesPerSample() int {
	switch f.Encoding {
	case EncodingFloat32:
		return 4
	default:
		return 2
	}
}

// FrameSize returns the byte width of one frame across all channels
func (f AudioFormat) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// Validate validates the format descriptor
func (f AudioFormat) Validate() error {
	if f.SampleRate < 8000 || f.SampleRate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000, got %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("channel count must be between 1 and 8, got %d", f.Channels)
	}
	if f.Encoding != EncodingInt16 && f.Encoding != EncodingFloat32 {
		return fmt.Errorf("unsupported sample encoding: %s", f.Encoding)
	}
	return nil
}
