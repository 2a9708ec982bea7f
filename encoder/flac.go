// Package encoder packs a finished recording as FLAC before it is
// uploaded to a remote speech-to-text service.
package encoder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	SampleRate    = 16000
	BitsPerSample = 16
	// BlockSize is the number of samples per FLAC frame; the last frame
	// may be shorter.
	BlockSize = 4096
)

// Stats describes one encoded recording.
type Stats struct {
	Samples    int
	Frames     int
	Bytes      int
	EncodeTime time.Duration
}

// Duration is the audio length at SampleRate.
func (s Stats) Duration() time.Duration {
	return time.Duration(s.Samples) * time.Second / SampleRate
}

// Ratio is encoded size over raw 16-bit PCM size, 0 for empty input.
func (s Stats) Ratio() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Bytes) / float64(s.Samples*2)
}

func (s Stats) String() string {
	return fmt.Sprintf("flac %d bytes, %.1fs audio, ratio %.2f, encode %v",
		s.Bytes, s.Duration().Seconds(), s.Ratio(), s.EncodeTime.Round(time.Microsecond))
}

// FLAC encodes 16 kHz mono samples. The stream header carries the total
// sample count, so the output is a complete file.
func FLAC(samples []int16) ([]byte, Stats, error) {
	start := time.Now()
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     1,
		BitsPerSample: BitsPerSample,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	stats := Stats{Samples: len(samples)}
	for i := 0; i < len(samples); i += BlockSize {
		if err := writeFrame(enc, samples[i:min(i+BlockSize, len(samples))]); err != nil {
			enc.Close()
			return nil, Stats{}, err
		}
		stats.Frames++
	}
	if err := enc.Close(); err != nil {
		return nil, Stats{}, fmt.Errorf("closing flac stream: %w", err)
	}

	stats.Bytes = buf.Len()
	stats.EncodeTime = time.Since(start)
	return buf.Bytes(), stats, nil
}

func writeFrame(enc *flac.Encoder, block []int16) error {
	wide := make([]int32, len(block))
	for i, s := range block {
		wide[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   wide,
			NSamples:  len(block),
		}},
	}
	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	return nil
}
