package transcriber

import (
	"context"
	"sync"
)

// FakeEngine returns canned segments and records every call.
type FakeEngine struct {
	Segments []Segment
	Err      error

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Samples  []float32
	Language string
}

func NewFake(text string, err error) *FakeEngine {
	f := &FakeEngine{Err: err}
	if text != "" {
		f.Segments = []Segment{{Text: text}}
	}
	return f
}

// Loader returns a Loader that always yields f.
func (f *FakeEngine) Loader() Loader {
	return func(string) (Engine, error) { return f, nil }
}

func (f *FakeEngine) Name() string { return "fake" }
func (f *FakeEngine) Close() error { return nil }

func (f *FakeEngine) Transcribe(_ context.Context, samples []float32, language string) ([]Segment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Samples: append([]float32(nil), samples...), Language: language})
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Segments, nil
}

func (f *FakeEngine) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
