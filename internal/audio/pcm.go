package audio

import (
	"bytes"
	"encoding/binary"
	"time"
)

const (
	// TargetSampleRate is what speech recognition expects.
	TargetSampleRate = 16000
	sampleWidthBytes = 2
)

// PCMBuffer is signed 16-bit little-endian PCM.
type PCMBuffer struct {
	Samples     []int16
	SampleRate  int
	SampleWidth int
	Channels    int
}

func (b *PCMBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 || b.Channels == 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// WAV packages the buffer as a canonical 44-byte-header RIFF/WAVE file.
func (b *PCMBuffer) WAV() []byte {
	channels := b.Channels
	if channels == 0 {
		channels = 1
	}
	width := b.SampleWidth
	if width == 0 {
		width = sampleWidthBytes
	}
	dataLen := len(b.Samples) * width
	byteRate := b.SampleRate * channels * width

	var out bytes.Buffer
	out.Grow(44 + dataLen)
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(36+dataLen))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	_ = binary.Write(&out, binary.LittleEndian, uint32(16))
	_ = binary.Write(&out, binary.LittleEndian, uint16(1))
	_ = binary.Write(&out, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&out, binary.LittleEndian, uint32(b.SampleRate))
	_ = binary.Write(&out, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&out, binary.LittleEndian, uint16(channels*width))
	_ = binary.Write(&out, binary.LittleEndian, uint16(width*8))
	out.WriteString("data")
	_ = binary.Write(&out, binary.LittleEndian, uint32(dataLen))
	_ = binary.Write(&out, binary.LittleEndian, b.Samples)
	return out.Bytes()
}
