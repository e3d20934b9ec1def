// Package wav wraps raw PCM samples in a minimal uncompressed WAV container.
package wav

// HeaderSize is the fixed number of header bytes preceding sample data.
const HeaderSize = 44

// Encode wraps pcmData in a 44-byte WAV header describing linear PCM with the
// given sample rate, channel count, and bits per sample.
func Encode(pcmData []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcmData)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, HeaderSize+dataSize)

	// RIFF group header
	copy(buf[0:4], "RIFF")
	putLE32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt subchunk
	copy(buf[12:16], "fmt ")
	putLE32(buf[16:20], 16) // subchunk size for PCM
	putLE16(buf[20:22], 1)  // audio format 1 = linear PCM
	putLE16(buf[22:24], uint16(channels))
	putLE32(buf[24:28], uint32(sampleRate))
	putLE32(buf[28:32], uint32(byteRate))
	putLE16(buf[32:34], uint16(blockAlign))
	putLE16(buf[34:36], uint16(bitsPerSample))

	// data subchunk
	copy(buf[36:40], "data")
	putLE32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcmData)

	return buf
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
