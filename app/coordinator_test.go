package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxchat/audio"
	"voxchat/config"
	"voxchat/history"
	"voxchat/transcriber"
)

type fakeSink struct {
	mu        sync.Mutex
	views     []View
	recording []bool
	levels    int
	queries   []string
	result    string
	statuses  []string
	errs      []string
}

func (s *fakeSink) Settings(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *fakeSink) Recording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = append(s.recording, on)
}

func (s *fakeSink) Level(float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels++
}

func (s *fakeSink) Query(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, text)
}

func (s *fakeSink) Result(markdown string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = markdown
}

func (s *fakeSink) Status(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *fakeSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg != "" {
		s.errs = append(s.errs, msg)
	}
}

func (s *fakeSink) Levels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

func (s *fakeSink) LastView() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return View{}
	}
	return s.views[len(s.views)-1]
}

func (s *fakeSink) Snapshot() (recording []bool, queries []string, result string, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.recording...), append([]string(nil), s.queries...), s.result, append([]string(nil), s.errs...)
}

type fakeClipboard struct {
	mu     sync.Mutex
	copied []string
}

func (f *fakeClipboard) Copy(text string) error {
	f.mu.Lock()
	f.copied = append(f.copied, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeClipboard) Copied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copied...)
}

type fakeHistory struct {
	mu    sync.Mutex
	turns []history.Turn
}

func (f *fakeHistory) Record(_ context.Context, t history.Turn) error {
	f.mu.Lock()
	f.turns = append(f.turns, t)
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) Turns() []history.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Turn(nil), f.turns...)
}

type failingSynth struct{ err error }

func (f failingSynth) Synthesize(context.Context, string, string, string) ([]int16, int, error) {
	return nil, 0, f.err
}

// sseProvider answers every chat completion with the given fragments.
func sseProvider(t *testing.T, fragments ...string) *httptest.Server {
	t.Helper()
	return recordingProvider(t, nil, fragments...)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// requestLog keeps the messages of every chat completion request.
type requestLog struct {
	mu   sync.Mutex
	reqs [][]chatMessage
}

func (l *requestLog) add(r *http.Request) {
	var body struct {
		Messages []chatMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reqs = append(l.reqs, body.Messages)
}

func (l *requestLog) Requests() [][]chatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]chatMessage(nil), l.reqs...)
}

func recordingProvider(t *testing.T, reqs *requestLog, fragments ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqs != nil {
			reqs.add(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range fragments {
			fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", text)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	coord  *Coordinator
	sink   *fakeSink
	audio  *audio.FakeContext
	engine *transcriber.FakeEngine
	clip   *fakeClipboard
	hist   *fakeHistory
	cfg    *config.Config
}

func newHarness(t *testing.T, cfg *config.Config, deps Deps) *harness {
	t.Helper()
	h := &harness{
		sink:   &fakeSink{},
		audio:  audio.NewFakeContext(nil, 0, "Mic A", "Mic B"),
		engine: transcriber.NewFake("hello world", nil),
		clip:   &fakeClipboard{},
		hist:   &fakeHistory{},
		cfg:    cfg,
	}
	deps.Config = cfg
	deps.Audio = h.audio
	deps.Transcriber = transcriber.NewBridge(h.engine.Loader())
	deps.Clipboard = h.clip
	deps.History = h.hist
	deps.Sink = h.sink
	if deps.Synth == nil {
		deps.Synth = failingSynth{err: errors.New("unused")}
	}
	h.coord = New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-h.coord.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not become ready")
	}
	require.Eventually(t, func() bool { return h.audio.Running() == 1 }, 2*time.Second, 5*time.Millisecond)
	return h
}

func baseConfig() *config.Config {
	return &config.Config{
		AIChats:  map[string]config.Provider{},
		Voices:   map[string]string{},
		FontSize: 16,
		Theme:    "dark",
		TrLang:   "EN",
		TrModel:  "models/ggml-base.bin",
	}
}

func TestRecordThenTranscribe(t *testing.T) {
	h := newHarness(t, baseConfig(), Deps{})

	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.Eventually(t, func() bool {
		rec, _, _, _ := h.sink.Snapshot()
		return len(rec) == 1 && rec[0]
	}, 2*time.Second, 5*time.Millisecond)

	chunk := make([]int16, audio.ChunkSize)
	for range 3 {
		h.audio.Feed(chunk)
	}
	require.Eventually(t, func() bool { return h.sink.Levels() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.Eventually(t, func() bool {
		_, queries, _, _ := h.sink.Snapshot()
		return len(queries) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec, queries, _, errs := h.sink.Snapshot()
	require.Equal(t, []bool{true, false}, rec)
	require.Equal(t, []string{"hello world"}, queries)
	require.Empty(t, errs)

	calls := h.engine.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Samples, 3*audio.ChunkSize)
	require.Equal(t, "en", calls[0].Language)
}

func TestSamplesOutsideRecordingOnlyDriveMeter(t *testing.T) {
	h := newHarness(t, baseConfig(), Deps{})

	h.audio.Feed(make([]int16, audio.ChunkSize))
	require.Eventually(t, func() bool { return h.sink.Levels() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.Eventually(t, func() bool {
		_, _, _, errs := h.sink.Snapshot()
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, queries, _, errs := h.sink.Snapshot()
	require.Empty(t, queries)
	require.Contains(t, errs[0], transcriber.ErrNoAudio.Error())
	require.Empty(t, h.engine.Calls())
}

func TestSilenceTranscribesToEmptyText(t *testing.T) {
	h := newHarness(t, baseConfig(), Deps{})
	h.engine.Segments = nil

	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.Eventually(t, func() bool {
		rec, _, _, _ := h.sink.Snapshot()
		return len(rec) == 1
	}, 2*time.Second, 5*time.Millisecond)
	for range 3 {
		h.audio.Feed(make([]int16, audio.ChunkSize))
	}
	require.Eventually(t, func() bool { return h.sink.Levels() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))

	require.Eventually(t, func() bool {
		_, queries, _, _ := h.sink.Snapshot()
		return len(queries) == 1
	}, 2*time.Second, 5*time.Millisecond)
	_, queries, _, errs := h.sink.Snapshot()
	require.Equal(t, []string{""}, queries)
	require.Empty(t, errs)
	require.Len(t, h.engine.Calls()[0].Samples, 3*audio.ChunkSize)
}

func TestSelectDeviceWhileRecordingReopensCapture(t *testing.T) {
	h := newHarness(t, baseConfig(), Deps{})

	require.NoError(t, h.coord.Dispatch(ToggleRecord{}))
	require.NoError(t, h.coord.Dispatch(SelectDevice{Name: "Mic B"}))
	require.Eventually(t, func() bool {
		opened := h.audio.Opened()
		return len(opened) == 2 && opened[1] == "Mic B"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.sink.LastView().Device == "Mic B" }, time.Second, 5*time.Millisecond)
	require.Equal(t, "Mic B", h.cfg.RecDevice)

	require.NoError(t, h.coord.Dispatch(SelectDevice{Name: "Unplugged"}))
	require.Eventually(t, func() bool {
		opened := h.audio.Opened()
		return len(opened) == 3 && opened[2] == "default"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAskStreamsResultAndCopiesCode(t *testing.T) {
	srv := sseProvider(t, "Try:\n", "```go\n", "fmt.Println(1)\n", "```")
	cfg := baseConfig()
	cfg.AIChats["Test"] = config.Provider{Name: "Test", Key: "k", URL: srv.URL, Model: "m"}
	cfg.SelChat = "Test"
	cfg.PromptContext = "be brief"
	h := newHarness(t, cfg, Deps{})

	require.NoError(t, h.coord.Dispatch(SetQuery{Text: "print one"}))
	require.NoError(t, h.coord.Dispatch(Ask{}))
	require.Eventually(t, func() bool { return len(h.hist.Turns()) == 1 }, 2*time.Second, 5*time.Millisecond)

	_, _, result, errs := h.sink.Snapshot()
	require.Empty(t, errs)
	require.Equal(t, "Try:\n```go\nfmt.Println(1)\n```", result)

	turn := h.hist.Turns()[0]
	require.Equal(t, "Test", turn.Provider)
	require.Equal(t, "print one", turn.Prompt)
	require.Equal(t, "be brief", turn.Context)
	require.Equal(t, result, turn.Response)

	require.NoError(t, h.coord.Dispatch(CopyCode{}))
	require.NoError(t, h.coord.Dispatch(CopyResult{}))
	require.Eventually(t, func() bool { return len(h.clip.Copied()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"fmt.Println(1)\n", result}, h.clip.Copied())
}

func TestClearedContextIsNotSent(t *testing.T) {
	reqs := &requestLog{}
	srv := recordingProvider(t, reqs, "ok")
	cfg := baseConfig()
	cfg.AIChats["Test"] = config.Provider{Name: "Test", Key: "k", URL: srv.URL, Model: "m"}
	cfg.SelChat = "Test"
	cfg.PromptContext = "C"
	h := newHarness(t, cfg, Deps{})

	ask := func(query string, turns int) {
		require.NoError(t, h.coord.Dispatch(SetQuery{Text: query}))
		require.NoError(t, h.coord.Dispatch(Ask{}))
		require.Eventually(t, func() bool { return len(h.hist.Turns()) == turns }, 2*time.Second, 5*time.Millisecond)
	}
	ask("one", 1)
	require.NoError(t, h.coord.Dispatch(SetContext{Text: ""}))
	ask("two", 2)

	got := reqs.Requests()
	require.Len(t, got, 2)
	require.Equal(t, []chatMessage{{Role: "system", Content: "C"}, {Role: "user", Content: "one"}}, got[0])
	require.Equal(t, []chatMessage{{Role: "user", Content: "two"}}, got[1])
}

func TestAskWithoutProviderReportsError(t *testing.T) {
	h := newHarness(t, baseConfig(), Deps{})

	require.NoError(t, h.coord.Dispatch(Ask{}))
	require.Eventually(t, func() bool {
		_, _, _, errs := h.sink.Snapshot()
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond)
	_, _, _, errs := h.sink.Snapshot()
	require.Contains(t, errs[0], "no chat provider")
}

func TestVoiceFailureTurnsPlayOff(t *testing.T) {
	srv := sseProvider(t, "Hello", " world", ".")
	cfg := baseConfig()
	cfg.AIChats["Test"] = config.Provider{Name: "Test", Key: "k", URL: srv.URL, Model: "m"}
	cfg.AIChats[config.VoiceProvider] = config.Provider{Name: config.VoiceProvider, Key: "xi", Model: "rachel"}
	cfg.Voices["rachel"] = "voice-1"
	cfg.SelChat = "Test"
	h := newHarness(t, cfg, Deps{Synth: failingSynth{err: errors.New("quota exceeded")}})

	require.NoError(t, h.coord.Dispatch(SetPlay{On: true}))
	require.Eventually(t, func() bool { return h.sink.LastView().Play }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.coord.Dispatch(SetQuery{Text: "hi"}))
	require.NoError(t, h.coord.Dispatch(Ask{}))
	require.Eventually(t, func() bool {
		_, _, _, errs := h.sink.Snapshot()
		for _, e := range errs {
			if strings.Contains(e, "quota exceeded") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.sink.LastView().Play }, time.Second, 5*time.Millisecond)
	require.Empty(t, h.audio.Played())
}

func TestSettingsActions(t *testing.T) {
	cfg := baseConfig()
	cfg.AIChats["A"] = config.Provider{Name: "A", Model: "a1"}
	cfg.AIChats["B"] = config.Provider{Name: "B", Model: "b1"}
	cfg.SelChat = "A"
	h := newHarness(t, cfg, Deps{})

	require.NoError(t, h.coord.Dispatch(SelectProvider{Name: "B"}))
	require.NoError(t, h.coord.Dispatch(EditProvider{Key: "kb", URL: "http://localhost:1", Model: "b2"}))
	require.NoError(t, h.coord.Dispatch(FontSize{Delta: 100}))
	require.NoError(t, h.coord.Dispatch(SelectLanguage{Code: "PL"}))
	require.NoError(t, h.coord.Dispatch(SelectTheme{Name: "light"}))

	require.Eventually(t, func() bool { return h.sink.LastView().Theme == "light" }, time.Second, 5*time.Millisecond)
	v := h.sink.LastView()
	require.Equal(t, "B", v.Provider)
	require.Equal(t, "b2", v.Model)
	require.Equal(t, "kb", v.Key)
	require.Equal(t, float32(config.MaxFontSize), v.FontSize)
	require.Equal(t, "PL", v.Language)
	require.Equal(t, []string{"A", "B"}, v.Providers)
	require.Equal(t, []string{"Mic A", "Mic B"}, v.Devices)
}

func TestDispatchNeverBlocks(t *testing.T) {
	c := New(Deps{Config: baseConfig(), Sink: &fakeSink{}})
	var err error
	for range 200 {
		if err = c.Dispatch(SetQuery{Text: "x"}); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrBusy)
}
