// Package transcriber turns a finished recording into text.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"voxchat/audio"
	"voxchat/log"
)

// ErrNoAudio is returned when Transcribe is called with an empty buffer.
var ErrNoAudio = errors.New("transcriber: no audio captured")

type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Engine decodes 16 kHz mono samples in [-1, 1] with greedy decoding.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32, language string) ([]Segment, error)
	Close() error
}

// Loader opens an engine for a model path.
type Loader func(modelPath string) (Engine, error)

// Bridge is the one-shot entry point. It keeps the last loaded engine
// and reloads only when the model path changes.
type Bridge struct {
	load Loader

	mu     sync.Mutex
	engine Engine
	model  string
}

func NewBridge(load Loader) *Bridge {
	return &Bridge{load: load}
}

// Transcribe returns the concatenated text of every decoded segment.
// No separators are inserted between segments.
func (b *Bridge) Transcribe(ctx context.Context, samples []float32, language, modelPath string) (string, error) {
	if len(samples) == 0 {
		return "", ErrNoAudio
	}
	language = isoLanguage(language)

	b.mu.Lock()
	defer b.mu.Unlock()

	engine, err := b.engineFor(modelPath)
	if err != nil {
		return "", err
	}

	start := time.Now()
	segments, err := engine.Transcribe(ctx, samples, language)
	if err != nil {
		return "", fmt.Errorf("%s decode: %w", engine.Name(), err)
	}

	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.Text)
	}
	text := sb.String()

	log.Transcription(log.TranscribeMetrics{
		Engine:      engine.Name(),
		Language:    language,
		AudioS:      float64(len(samples)) / audio.SampleRate,
		Chars:       len(text),
		TotalTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
	log.TranscriptionText(text)
	return text, nil
}

// UI language codes that differ from the ISO 639-1 codes engines expect.
var isoCodes = map[string]string{
	"cn": "zh",
	"jp": "ja",
	"ua": "uk",
}

func isoLanguage(code string) string {
	code = strings.ToLower(code)
	if iso, ok := isoCodes[code]; ok {
		return iso
	}
	return code
}

// keepGoing reports whether a running decode should continue.
func keepGoing(ctx context.Context) func() bool {
	return func() bool { return ctx.Err() == nil }
}

func (b *Bridge) engineFor(modelPath string) (Engine, error) {
	if b.engine != nil && b.model == modelPath {
		return b.engine, nil
	}
	if b.engine != nil {
		b.engine.Close()
		b.engine = nil
	}
	engine, err := b.load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model %q: %w", modelPath, err)
	}
	b.engine = engine
	b.model = modelPath
	return engine, nil
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engine == nil {
		return nil
	}
	err := b.engine.Close()
	b.engine = nil
	return err
}
