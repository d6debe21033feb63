package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"
)

// opusFrameSamples is one 20ms frame at 48kHz. The SILK decoder only handles 20ms mono
// frames and always writes exactly this many samples per packet.
const opusFrameSamples = 960

// Decode sniffs the container and returns mono PCM at TargetSampleRate. Only OGG/Opus
// (WhatsApp and Twilio voice notes) and 16-bit PCM WAV are accepted.
func Decode(data []byte) (buf *PCMBuffer, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: decoder panic: %v", ErrDecode, r)
		}
	}()

	mtype := mimetype.Detect(data)
	var (
		samples    []int16
		sampleRate int
		channels   int
	)
	switch {
	case mtype.Is("audio/ogg"), mtype.Is("application/ogg"), mtype.Is("audio/opus"):
		samples, sampleRate, channels, err = decodeOggOpus(data)
	case mtype.Is("audio/wav"):
		samples, sampleRate, channels, err = decodeWAV(data)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrDecode, mtype.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples decoded", ErrDecode)
	}

	if channels > 1 {
		samples = toMono(samples, channels)
	}
	samples, err = resampleInt16(samples, sampleRate, TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return &PCMBuffer{
		Samples:     samples,
		SampleRate:  TargetSampleRate,
		SampleWidth: sampleWidthBytes,
		Channels:    1,
	}, nil
}

func decodeOggOpus(data []byte) ([]int16, int, int, error) {
	ogg, header, err := oggreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse ogg container: %w", err)
	}
	if header.Channels > 1 {
		return nil, 0, 0, fmt.Errorf("unsupported opus channel count %d", header.Channels)
	}
	// Opus always decodes at 48kHz; the header rate is the pre-encoding input rate.
	sampleRate := 48000

	decoder := opus.NewDecoder()
	outBuf := make([]byte, opusFrameSamples*2)

	var all []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse ogg page: %w", err)
		}
		for _, segment := range segments {
			if len(segment) == 0 {
				continue
			}
			// OpusHead and OpusTags pages are not audio packets.
			if bytes.HasPrefix(segment, []byte("OpusHead")) || bytes.HasPrefix(segment, []byte("OpusTags")) {
				continue
			}
			if _, _, err := decoder.Decode(segment, outBuf); err != nil {
				continue
			}
			all = append(all, bytesToInt16(outBuf)...)
		}
	}
	return all, sampleRate, 1, nil
}

func decodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFmt       bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}
		chunk := data[body : body+size]

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, 0, errors.New("short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = binary.LittleEndian.Uint32(chunk[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, errors.New("data chunk before fmt chunk")
			}
			if format != 1 || bitsPerSample != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported wav encoding format=%d bits=%d", format, bitsPerSample)
			}
			if channels == 0 || sampleRate == 0 {
				return nil, 0, 0, errors.New("invalid wav header")
			}
			samples := make([]int16, len(chunk)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2]))
			}
			return samples, int(sampleRate), int(channels), nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}
	return nil, 0, 0, errors.New("wav has no data chunk")
}

// bytesToInt16 reads little-endian samples. A trailing odd byte is ignored.
func bytesToInt16(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return samples
}

// toMono averages interleaved channels.
func toMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

func resampleInt16(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate == toRate {
		return samples, nil
	}
	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	return resampler.ResampleInt16(samples), nil
}
