// Package chat runs the streaming conversation with an OpenAI-compatible
// chat-completion provider.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"voxchat/config"
	"voxchat/log"
	"voxchat/mailbox"
)

type Command interface{ isCommand() }

type SetProvider struct{ Provider config.Provider }
type SetContext struct{ Text string }
type Prompt struct{ Text string }

// Stop abandons the in-flight stream. No further fragments from it are
// delivered.
type Stop struct{}

func (SetProvider) isCommand() {}
func (SetContext) isCommand()  {}
func (Prompt) isCommand()      {}
func (Stop) isCommand()        {}

type Event interface{ isEvent() }

type Ready struct{ Sender *mailbox.Sender[Command] }
type MessageFragment struct{ Text string }
type Error struct{ Message string }
type StreamEnded struct{}

func (Ready) isEvent()           {}
func (MessageFragment) isEvent() {}
func (Error) isEvent()           {}
func (StreamEnded) isEvent()     {}

// piece is one item read from a provider stream.
type piece struct {
	text string
	err  error
	done bool
}

type Session struct {
	events chan Event

	provider *config.Provider
	system   string

	// current stream; nil while idle
	pieces    <-chan piece
	cancel    context.CancelFunc
	started   time.Time
	fragments int
}

// Start launches the chat session. The returned channel is closed when
// ctx is cancelled.
func Start(ctx context.Context) <-chan Event {
	s := &Session{events: make(chan Event, mailbox.Capacity)}
	go s.run(ctx)
	return s.events
}

func (s *Session) run(ctx context.Context) {
	sender, inbox := mailbox.New[Command]()
	defer close(s.events)
	defer inbox.Close()
	defer s.abandon()

	if !s.emit(ctx, Ready{Sender: sender}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-inbox.C:
			s.handle(ctx, cmd)
		case p := <-s.pieces:
			s.deliver(ctx, p)
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case SetProvider:
		p := c.Provider
		s.provider = &p
	case SetContext:
		s.system = c.Text
	case Prompt:
		s.abandon()
		if s.provider == nil {
			s.emit(ctx, Error{Message: "no chat provider configured"})
			return
		}
		s.open(ctx, c.Text)
	case Stop:
		s.abandon()
	}
}

func (s *Session) deliver(ctx context.Context, p piece) {
	switch {
	case p.err != nil:
		s.finish(p.err)
		s.emit(ctx, Error{Message: p.err.Error()})
	case p.done:
		s.finish(nil)
		s.emit(ctx, StreamEnded{})
	case p.text != "":
		s.fragments++
		s.emit(ctx, MessageFragment{Text: p.text})
	}
}

// Messages builds the request body: an optional system message followed
// by the user prompt.
func Messages(system, prompt string) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

func (s *Session) open(ctx context.Context, prompt string) {
	cfg := openai.DefaultConfig(s.provider.Key)
	if s.provider.URL != "" {
		cfg.BaseURL = s.provider.URL
	}
	client := openai.NewClientWithConfig(cfg)

	streamCtx, cancel := context.WithCancel(ctx)
	pieces := make(chan piece, mailbox.Capacity)
	s.pieces = pieces
	s.cancel = cancel
	s.started = time.Now()
	s.fragments = 0

	req := openai.ChatCompletionRequest{
		Model:    s.provider.Model,
		Messages: Messages(s.system, prompt),
		Stream:   true,
	}
	go read(streamCtx, client, req, pieces)
}

// read forwards a provider stream into pieces until it ends, fails, or
// ctx is cancelled.
func read(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest, pieces chan<- piece) {
	send := func(p piece) bool {
		select {
		case pieces <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			send(piece{err: fmt.Errorf("chat request: %w", err)})
		}
		return
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			send(piece{done: true})
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				send(piece{err: fmt.Errorf("chat stream: %w", err)})
			}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			if !send(piece{text: text}) {
				return
			}
		}
	}
}

// abandon cancels the current stream and forgets its channel so nothing
// already queued on it is delivered.
func (s *Session) abandon() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	log.Debugf("chat: abandoned stream after %d fragments", s.fragments)
	s.cancel = nil
	s.pieces = nil
}

func (s *Session) finish(err error) {
	name, model := "", ""
	if s.provider != nil {
		name, model = s.provider.Name, s.provider.Model
	}
	log.ChatTurn(name, model, s.fragments, time.Since(s.started), err)
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.pieces = nil
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	return mailbox.Emit(ctx, s.events, ev)
}
