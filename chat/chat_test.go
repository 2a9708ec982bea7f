package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"voxchat/config"
	"voxchat/mailbox"
)

// fakeProvider serves /chat/completions as an SSE stream. Each prompt is
// looked up in replies; a prompt of "hang" sends one fragment and then
// waits for the client to go away.
type fakeProvider struct {
	t       *testing.T
	replies map[string][]string

	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("decode request: %v", err)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-key" {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	chunk := func(text string) {
		fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", text)
		flusher.Flush()
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	if prompt == "hang" {
		chunk("stale-1")
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		chunk("stale-2")
		return
	}
	for _, text := range f.replies[prompt] {
		chunk(text)
	}
	chunk("")
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (f *fakeProvider) Requests() []openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), f.requests...)
}

func setup(t *testing.T, replies map[string][]string) (*fakeProvider, *mailbox.Sender[Command], <-chan Event, config.Provider) {
	t.Helper()
	fp := &fakeProvider{t: t, replies: replies}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	events := Start(ctx)

	ready, ok := (<-events).(Ready)
	require.True(t, ok, "first event must be Ready")
	provider := config.Provider{Name: "Test", Key: "test-key", URL: srv.URL, Model: "test-model"}
	return fp, ready.Sender, events, provider
}

// collect reads events until StreamEnded or Error and returns the
// fragments seen.
func collect(t *testing.T, events <-chan Event) ([]string, Event) {
	t.Helper()
	var frags []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case MessageFragment:
				frags = append(frags, e.Text)
			case StreamEnded, Error:
				return frags, e
			}
		case <-timeout:
			t.Fatalf("timed out, fragments so far: %v", frags)
		}
	}
}

func TestPromptStreamsFragmentsInOrder(t *testing.T) {
	fp, send, events, provider := setup(t, map[string][]string{"X": {"Hel", "lo", " there"}})

	require.NoError(t, send.Send(SetProvider{Provider: provider}))
	require.NoError(t, send.Send(Prompt{Text: "X"}))

	frags, end := collect(t, events)
	require.IsType(t, StreamEnded{}, end)
	require.Equal(t, []string{"Hel", "lo", " there"}, frags)

	reqs := fp.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "test-model", reqs[0].Model)
	require.True(t, reqs[0].Stream)
	require.Len(t, reqs[0].Messages, 1)
	require.Equal(t, openai.ChatMessageRoleUser, reqs[0].Messages[0].Role)
	require.Equal(t, "X", reqs[0].Messages[0].Content)
}

func TestContextPrependsSystemMessage(t *testing.T) {
	fp, send, events, provider := setup(t, map[string][]string{"X": {"ok"}})

	require.NoError(t, send.Send(SetProvider{Provider: provider}))
	require.NoError(t, send.Send(SetContext{Text: "C"}))
	require.NoError(t, send.Send(Prompt{Text: "X"}))
	collect(t, events)

	msgs := fp.Requests()[0].Messages
	require.Len(t, msgs, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	require.Equal(t, "C", msgs[0].Content)
	require.Equal(t, "X", msgs[1].Content)
}

func TestStopThenPromptDropsStaleFragments(t *testing.T) {
	_, send, events, provider := setup(t, map[string][]string{"fresh": {"new-1", "new-2"}})

	require.NoError(t, send.Send(SetProvider{Provider: provider}))
	require.NoError(t, send.Send(Prompt{Text: "hang"}))

	select {
	case ev := <-events:
		require.Equal(t, MessageFragment{Text: "stale-1"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no first fragment")
	}

	require.NoError(t, send.Send(Stop{}))
	require.NoError(t, send.Send(Prompt{Text: "fresh"}))

	frags, end := collect(t, events)
	require.IsType(t, StreamEnded{}, end)
	require.Equal(t, []string{"new-1", "new-2"}, frags)
}

func TestNewPromptReplacesStream(t *testing.T) {
	_, send, events, provider := setup(t, map[string][]string{"fresh": {"only"}})

	require.NoError(t, send.Send(SetProvider{Provider: provider}))
	require.NoError(t, send.Send(Prompt{Text: "hang"}))
	require.Equal(t, MessageFragment{Text: "stale-1"}, <-events)
	require.NoError(t, send.Send(Prompt{Text: "fresh"}))

	frags, _ := collect(t, events)
	require.Equal(t, []string{"only"}, frags)
}

func TestPromptWithoutProviderIsError(t *testing.T) {
	_, send, events, _ := setup(t, nil)
	require.NoError(t, send.Send(Prompt{Text: "X"}))
	_, end := collect(t, events)
	require.IsType(t, Error{}, end)
}

func TestRequestErrorReturnsToIdle(t *testing.T) {
	_, send, events, provider := setup(t, map[string][]string{"X": {"fine"}})

	bad := provider
	bad.Key = "wrong"
	require.NoError(t, send.Send(SetProvider{Provider: bad}))
	require.NoError(t, send.Send(Prompt{Text: "X"}))
	_, end := collect(t, events)
	require.IsType(t, Error{}, end)

	require.NoError(t, send.Send(SetProvider{Provider: provider}))
	require.NoError(t, send.Send(Prompt{Text: "X"}))
	frags, end := collect(t, events)
	require.IsType(t, StreamEnded{}, end)
	require.Equal(t, []string{"fine"}, frags)
}

func TestMessages(t *testing.T) {
	require.Len(t, Messages("", "p"), 1)
	msgs := Messages("sys", "p")
	require.Len(t, msgs, 2)
	require.Equal(t, "sys", msgs[0].Content)
}
