package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"voxchat/app"
	"voxchat/mailbox"
)

const scriptWait = 60 * time.Second

// scriptSink prints coordinator output as plain lines and lets the
// script runner wait for transcripts and finished chat turns.
type scriptSink struct {
	mu        sync.Mutex
	w         io.Writer
	streaming bool
	result    string

	transcripts chan struct{}
	turns       chan struct{}
	errs        chan struct{}
}

func newScriptSink(w io.Writer) *scriptSink {
	return &scriptSink{
		w:           w,
		transcripts: make(chan struct{}, mailbox.Capacity),
		turns:       make(chan struct{}, mailbox.Capacity),
		errs:        make(chan struct{}, mailbox.Capacity),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *scriptSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *scriptSink) Settings(v app.View) {
	s.mu.Lock()
	ended := s.streaming && !v.Streaming
	s.streaming = v.Streaming
	result := s.result
	s.mu.Unlock()
	if ended {
		s.printf("result: %s", result)
		signal(s.turns)
	}
}

func (s *scriptSink) Recording(on bool) {
	if on {
		s.printf("recording")
	} else {
		s.printf("stopped")
	}
}

func (s *scriptSink) Level(float64, int) {}

func (s *scriptSink) Query(text string) {
	s.printf("query: %s", text)
	signal(s.transcripts)
}

func (s *scriptSink) Result(md string) {
	s.mu.Lock()
	s.result = md
	s.mu.Unlock()
}

func (s *scriptSink) Status(text string) {
	if text != "" {
		s.printf("status: %s", text)
	}
}

func (s *scriptSink) Error(msg string) {
	if msg == "" {
		return
	}
	s.printf("error: %s", msg)
	signal(s.errs)
}

func (s *scriptSink) wait(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-s.errs:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(scriptWait):
		return errors.New("timed out")
	}
}

// runCommands executes one command per line:
//
//	RECORD          toggle recording
//	WAIT            wait for a transcript (or an error)
//	ASK [text]      optionally replace the query, then ask
//	WAIT_RESULT     wait for the response to finish (or an error)
//	STOP            abandon the response
//	PLAY on|off     speak responses
//	DEVICE name     switch microphone
//	COPY | CODE     copy the result or its first code block
//	SLEEP ms
//	QUIT
func runCommands(ctx context.Context, dispatch func(app.Action) error, sink *scriptSink, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch strings.ToUpper(cmd) {
		case "RECORD":
			err = dispatch(app.ToggleRecord{})
		case "WAIT":
			err = sink.wait(ctx, sink.transcripts)
		case "ASK":
			if arg != "" {
				err = dispatch(app.SetQuery{Text: arg})
			}
			if err == nil {
				err = dispatch(app.Ask{})
			}
		case "WAIT_RESULT":
			err = sink.wait(ctx, sink.turns)
		case "STOP":
			err = dispatch(app.StopChat{})
		case "PLAY":
			err = dispatch(app.SetPlay{On: strings.EqualFold(arg, "on")})
		case "DEVICE":
			err = dispatch(app.SelectDevice{Name: arg})
		case "COPY":
			err = dispatch(app.CopyResult{})
		case "CODE":
			err = dispatch(app.CopyCode{})
		case "SLEEP":
			var ms int
			if ms, err = strconv.Atoi(arg); err == nil {
				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
				case <-ctx.Done():
					return nil
				}
			}
		case "QUIT":
			return nil
		default:
			err = fmt.Errorf("unknown command %q", cmd)
		}
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", lineNo, line, err)
		}
	}
	return scanner.Err()
}

func runScript(ctx context.Context, deps app.Deps, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		r = f
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := newScriptSink(os.Stdout)
	deps.Sink = sink
	coord := app.New(deps)

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	select {
	case <-coord.Ready():
	case <-ctx.Done():
		return <-done
	}

	err := runCommands(ctx, coord.Dispatch, sink, r)
	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}
