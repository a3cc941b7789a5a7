package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	// SampleRate is the rate Discord voice packets are encoded at.
	SampleRate = 48000
	// Channels is the stereo channel count of Discord voice packets.
	Channels = 2

	frameSamples = 960 // 20ms at 48kHz
)

// OpusDecoder decodes one speaker's opus packet stream into 16-bit
// little-endian PCM. Opus decoders carry inter-packet state, so each
// speaker stream needs its own.
type OpusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode returns the packet's samples as interleaved PCM16LE bytes.
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm := make([]int16, frameSamples*Channels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}

	out := make([]byte, n*Channels*2)
	for i, sample := range pcm[:n*Channels] {
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out, nil
}
