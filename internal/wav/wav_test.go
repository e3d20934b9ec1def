package wav

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	out := Encode(pcm, 24000, 1, 16)

	if len(out) != HeaderSize+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize+len(pcm), len(out))
	}

	if !bytes.Equal(out[0:4], []byte("RIFF")) {
		t.Errorf("Expected RIFF marker, got %q", out[0:4])
	}
	if !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Errorf("Expected WAVE marker, got %q", out[8:12])
	}
	if !bytes.Equal(out[12:16], []byte("fmt ")) {
		t.Errorf("Expected fmt marker, got %q", out[12:16])
	}
	if !bytes.Equal(out[36:40], []byte("data")) {
		t.Errorf("Expected data marker, got %q", out[36:40])
	}

	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("Expected RIFF size %d, got %d", 36+len(pcm), got)
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Errorf("Expected PCM format tag 1, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Errorf("Expected 1 channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 48000 {
		t.Errorf("Expected byte rate 48000, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[32:34]); got != 2 {
		t.Errorf("Expected block align 2, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Errorf("Expected data size %d, got %d", len(pcm), got)
	}

	if !bytes.Equal(out[44:], pcm) {
		t.Error("Expected sample payload to follow the header unchanged")
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	out := Encode(nil, 24000, 1, 16)
	if len(out) != HeaderSize {
		t.Fatalf("Expected bare %d-byte header, got %d bytes", HeaderSize, len(out))
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 0 {
		t.Errorf("Expected zero data size, got %d", got)
	}
}
