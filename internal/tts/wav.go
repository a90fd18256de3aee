package tts

import (
	"bytes"
	"encoding/binary"
)

// pcmFormat describes raw little-endian PCM samples.
type pcmFormat struct {
	SampleRate int
	Channels   int
	Width      int // bytes per sample
}

// geminiPCM is the raw format Gemini speech responses carry.
var geminiPCM = pcmFormat{SampleRate: 24000, Channels: 1, Width: 2}

// wrapWAV prefixes pcm with a canonical 44-byte RIFF/WAVE header.
func wrapWAV(pcm []byte, f pcmFormat) []byte {
	blockAlign := f.Channels * f.Width
	header := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(f.Width * 8),
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = binary.Write(&buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}
