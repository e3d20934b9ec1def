package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/vortexhq/vortex-voice/domain/entities"
)

// ErrConversion marks a per-buffer format conversion failure. The offending
// buffer is dropped; capture continues.
var ErrConversion = errors.New("audio conversion error")

// Convert reformats one raw capture buffer from src to dst. Multi-channel
// input is downmixed by averaging, sample encoding is converted, and the rate
// is linearly resampled per buffer. Conversion either yields a complete
// buffer or nothing.
func Convert(raw []byte, src, dst entities.AudioFormat) ([]byte, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: source format: %v", ErrConversion, err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("%w: target format: %v", ErrConversion, err)
	}
	if dst.Channels != 1 || dst.Encoding != entities.EncodingInt16 {
		return nil, fmt.Errorf("%w: target must be 16-bit mono", ErrConversion)
	}
	if len(raw)%src.FrameSize() != 0 {
		return nil, fmt.Errorf("%w: buffer length %d is not a whole number of frames", ErrConversion, len(raw))
	}

	mono := decodeMono(raw, src)
	if src.SampleRate != dst.SampleRate {
		mono = resample(mono, src.SampleRate, dst.SampleRate)
	}

	out := make([]byte, len(mono)*2)
	for i, sample := range mono {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clampInt16(sample)))
	}
	return out, nil
}

// decodeMono decodes interleaved frames into normalized mono samples in
// [-1, 1], averaging channels.
func decodeMono(raw []byte, src entities.AudioFormat) []float64 {
	frameSize := src.FrameSize()
	frames := len(raw) / frameSize
	mono := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < src.Channels; ch++ {
			offset := i*frameSize + ch*src.BytesPerSample()
			switch src.Encoding {
			case entities.EncodingFloat32:
				bits := binary.LittleEndian.Uint32(raw[offset:])
				sum += float64(math.Float32frombits(bits))
			default:
				sum += float64(int16(binary.LittleEndian.Uint16(raw[offset:]))) / 32768.0
			}
		}
		mono[i] = sum / float64(src.Channels)
	}
	return mono
}

// resample converts the sample rate by per-buffer linear interpolation.
func resample(in []float64, srcRate, dstRate int) []float64 {
	if len(in) == 0 {
		return in
	}
	outLen := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float64, outLen)
	step := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

func clampInt16(sample float64) int16 {
	scaled := sample * 32767.0
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
