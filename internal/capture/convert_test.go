package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/vortexhq/vortex-voice/domain/entities"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestConvertPassthrough(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 24000, Channels: 1, Encoding: entities.EncodingInt16}
	in := pcm16(100, -100, 32000, -32000)

	out, err := Convert(in, src, entities.TargetFormat)
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d bytes, got %d", len(in), len(out))
	}

	for i := 0; i < len(in)/2; i++ {
		want := int16(binary.LittleEndian.Uint16(in[i*2:]))
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		if math.Abs(float64(want)-float64(got)) > 2 {
			t.Errorf("Sample %d: expected ~%d, got %d", i, want, got)
		}
	}
}

func TestConvertStereoDownmix(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 24000, Channels: 2, Encoding: entities.EncodingInt16}
	// Two frames: (1000, 3000) and (-2000, -4000); averages 2000 and -3000.
	in := pcm16(1000, 3000, -2000, -4000)

	out, err := Convert(in, src, entities.TargetFormat)
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("Expected 2 mono samples, got %d bytes", len(out))
	}

	first := int16(binary.LittleEndian.Uint16(out[0:]))
	second := int16(binary.LittleEndian.Uint16(out[2:]))
	if math.Abs(float64(first)-2000) > 2 {
		t.Errorf("Expected first sample ~2000, got %d", first)
	}
	if math.Abs(float64(second)+3000) > 2 {
		t.Errorf("Expected second sample ~-3000, got %d", second)
	}
}

func TestConvertResampleHalves(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: entities.EncodingInt16}
	in := make([]byte, 960*2) // 20ms at 48kHz

	out, err := Convert(in, src, entities.TargetFormat)
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	if len(out) != 480*2 {
		t.Errorf("Expected 480 samples after 48k->24k resample, got %d", len(out)/2)
	}
}

func TestConvertFloat32Source(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 24000, Channels: 1, Encoding: entities.EncodingFloat32}
	in := make([]byte, 8)
	binary.LittleEndian.PutUint32(in[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(in[4:], math.Float32bits(-0.5))

	out, err := Convert(in, src, entities.TargetFormat)
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}

	first := int16(binary.LittleEndian.Uint16(out[0:]))
	second := int16(binary.LittleEndian.Uint16(out[2:]))
	if math.Abs(float64(first)-16383) > 2 {
		t.Errorf("Expected first sample ~16383, got %d", first)
	}
	if math.Abs(float64(second)+16383) > 2 {
		t.Errorf("Expected second sample ~-16383, got %d", second)
	}
}

func TestConvertRejectsPartialFrames(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 24000, Channels: 1, Encoding: entities.EncodingInt16}
	_, err := Convert([]byte{0x01}, src, entities.TargetFormat)
	if !errors.Is(err, ErrConversion) {
		t.Errorf("Expected ErrConversion for partial frame, got %v", err)
	}
}

func TestConvertEmptyBuffer(t *testing.T) {
	src := entities.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: entities.EncodingInt16}
	out, err := Convert(nil, src, entities.TargetFormat)
	if err != nil {
		t.Fatalf("Expected empty buffer to convert, got: %v", err)
	}
	if !bytes.Equal(out, []byte{}) {
		t.Errorf("Expected empty output, got %d bytes", len(out))
	}
}
