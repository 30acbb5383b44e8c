// Package audio wraps the Opus codec for chirm's voice frames: 48kHz mono,
// 960-sample (20ms) frames. It is a stateless transform with no coupling to
// the signaling relay.
package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	sampleRate = 48000
	channels   = 1

	// FrameSize is the number of PCM samples per frame, and also a safe
	// upper bound for the encoded frame in bytes.
	FrameSize = 960
)

// Frame is a single encoded Opus frame.
type Frame []byte

type Encoder struct {
	enc *opus.Encoder
}

func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// EncodeFrame encodes one frame of PCM samples. len(pcm) must be FrameSize.
func (e *Encoder) EncodeFrame(pcm []int16) (Frame, error) {
	buf := make([]byte, FrameSize)
	n, err := e.enc.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return Frame(buf[:n]), nil
}

type Decoder struct {
	dec *opus.Decoder
}

func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// DecodeFrame decodes one Opus frame back into PCM samples.
func (d *Decoder) DecodeFrame(frame Frame) ([]int16, error) {
	buf := make([]int16, FrameSize)
	n, err := d.dec.Decode(frame, buf)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return buf[:n], nil
}
