// Package voice speaks streamed chat output one sentence at a time.
package voice

import (
	"context"
	"errors"
	"time"

	"voxchat/audio"
	"voxchat/log"
	"voxchat/mailbox"
)

type Command interface{ isCommand() }

type SetKey struct{ Key string }
type SetVoice struct{ VoiceID string }

// Read offers one streamed fragment for speaking.
type Read struct{ Text string }

// Skip drops buffered fragments and sentences not yet being spoken.
type Skip struct{}

func (SetKey) isCommand()   {}
func (SetVoice) isCommand() {}
func (Read) isCommand()     {}
func (Skip) isCommand()     {}

type Event interface{ isEvent() }

type Ready struct{ Sender *mailbox.Sender[Command] }
type Error struct{ Message string }

// Finished is emitted after a sentence has been played.
type Finished struct{}

func (Ready) isEvent()    {}
func (Error) isEvent()    {}
func (Finished) isEvent() {}

var (
	ErrNoKey   = errors.New("voice: no API key set")
	ErrNoVoice = errors.New("voice: no voice selected")
)

type job struct {
	key, voiceID, text string
}

type Session struct {
	synth  Synthesizer
	player audio.Player
	events chan Event

	key     string
	voiceID string
	buf     Buffer
}

// Start launches the voice session. Synthesis and playback run on a
// separate speak goroutine so fragments keep being accepted while a
// sentence is playing. Sentences completed meanwhile wait in run's queue.
func Start(ctx context.Context, synth Synthesizer, player audio.Player) <-chan Event {
	s := &Session{
		synth:  synth,
		player: player,
		events: make(chan Event, mailbox.Capacity),
	}
	go s.run(ctx)
	return s.events
}

func (s *Session) run(ctx context.Context) {
	sender, inbox := mailbox.New[Command]()
	defer close(s.events)
	defer inbox.Close()

	jobs := make(chan job)
	results := make(chan error, 1)
	go s.speak(ctx, jobs, results)

	if !s.emit(ctx, Ready{Sender: sender}) {
		return
	}

	var queue []job
	for {
		var out chan<- job
		var next job
		if len(queue) > 0 {
			out, next = jobs, queue[0]
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-inbox.C:
			if _, ok := cmd.(Skip); ok {
				s.buf.Reset()
				queue = queue[:0]
				continue
			}
			if j, ok := s.handle(ctx, cmd); ok {
				queue = append(queue, j)
			}
		case out <- next:
			queue = queue[1:]
		case err := <-results:
			if err != nil {
				log.Errorf("voice: %v", err)
				s.emit(ctx, Error{Message: err.Error()})
			} else {
				s.emit(ctx, Finished{})
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd Command) (job, bool) {
	switch c := cmd.(type) {
	case SetKey:
		s.key = c.Key
	case SetVoice:
		s.voiceID = c.VoiceID
	case Read:
		var err error
		switch {
		case s.key == "":
			err = ErrNoKey
		case s.voiceID == "":
			err = ErrNoVoice
		}
		if err != nil {
			s.emit(ctx, Error{Message: err.Error()})
			return job{}, false
		}
		if sentence, ok := s.buf.Push(c.Text); ok {
			return job{key: s.key, voiceID: s.voiceID, text: sentence}, true
		}
	}
	return job{}, false
}

func (s *Session) speak(ctx context.Context, jobs <-chan job, results chan<- error) {
	for {
		var j job
		select {
		case <-ctx.Done():
			return
		case j = <-jobs:
		}

		start := time.Now()
		pcm, rate, err := s.synth.Synthesize(ctx, j.key, j.voiceID, j.text)
		if err == nil {
			err = s.player.Play(pcm, rate)
			if err == nil {
				log.Speech(len(j.text), float64(len(pcm))/float64(rate), time.Since(start))
			}
		}

		select {
		case results <- err:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	return mailbox.Emit(ctx, s.events, ev)
}
