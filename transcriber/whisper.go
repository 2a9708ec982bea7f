//go:build whisper

package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type whisperEngine struct {
	model whisper.Model
}

// LoadWhisper opens a ggml model file with whisper.cpp.
func LoadWhisper(modelPath string) (Engine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, err
	}
	return &whisperEngine{model: model}, nil
}

func (w *whisperEngine) Name() string { return "whisper" }

func (w *whisperEngine) Transcribe(ctx context.Context, samples []float32, language string) ([]Segment, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			return nil, fmt.Errorf("language %q: %w", language, err)
		}
	}
	wctx.SetThreads(uint(runtime.NumCPU()))
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, keepGoing(ctx), nil, nil); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var segments []Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		segments = append(segments, Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	return segments, nil
}

func (w *whisperEngine) Close() error {
	return w.model.Close()
}
