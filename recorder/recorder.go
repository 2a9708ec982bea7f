// Package recorder owns the capture device. It runs continuously so the
// level meter stays live, and switches devices on command without
// dropping the session.
package recorder

import (
	"context"
	"fmt"
	"time"

	"voxchat/audio"
	"voxchat/log"
	"voxchat/mailbox"
)

// Command is sent from the coordinator to the recording session.
type Command interface{ isCommand() }

// SetDevice reopens capture on the device at Index (audio.DefaultDevice for
// the system default). It is a no-op when Index is already open.
type SetDevice struct{ Index int }

// Stop closes the device and ends the session.
type Stop struct{}

func (SetDevice) isCommand() {}
func (Stop) isCommand()      {}

// Event is emitted by the recording session.
type Event interface{ isEvent() }

type Ready struct{ Sender *mailbox.Sender[Command] }
type SampleRate struct{ Rate int }

// SamplesCaptured carries one chunk of audio.ChunkSize mono samples.
type SamplesCaptured struct{ Samples []int16 }
type DeviceError struct{ Message string }

func (Ready) isEvent()           {}
func (SampleRate) isEvent()      {}
func (SamplesCaptured) isEvent() {}
func (DeviceError) isEvent()     {}

const (
	// chunkWait bounds how long the loop blocks waiting for audio before it
	// re-checks for commands.
	chunkWait = 500 * time.Millisecond
	// chunkQueue is how many whole chunks may pile up between the audio
	// callback and the session loop.
	chunkQueue = 64
)

type Session struct {
	audio  audio.Context
	events chan Event
	index  int

	capture audio.CaptureDevice
	chunks  chan []int16
	opened  bool
}

// Start launches a session that opens the device at index and emits
// events until ctx is cancelled or Stop is received. The returned
// channel is closed when the session exits.
func Start(ctx context.Context, ac audio.Context, index int) <-chan Event {
	s := &Session{
		audio:  ac,
		events: make(chan Event, mailbox.Capacity),
		index:  index,
	}
	go s.run(ctx)
	return s.events
}

func (s *Session) run(ctx context.Context) {
	sender, inbox := mailbox.New[Command]()
	defer close(s.events)
	defer inbox.Close()
	defer s.closeDevice()

	if !s.emit(ctx, Ready{Sender: sender}) {
		return
	}
	s.open(ctx, s.index)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-inbox.C:
			if !s.handle(ctx, cmd) {
				log.Info("recorder stopped")
				return
			}
		case chunk := <-s.chunks:
			if !s.emit(ctx, SamplesCaptured{Samples: chunk}) {
				return
			}
		case <-time.After(chunkWait):
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd Command) bool {
	switch c := cmd.(type) {
	case SetDevice:
		if s.opened && c.Index == s.index {
			return true
		}
		s.closeDevice()
		s.open(ctx, c.Index)
	case Stop:
		return false
	}
	return true
}

func (s *Session) open(ctx context.Context, index int) {
	s.index = index

	devices, err := s.audio.Devices()
	if err != nil {
		s.deviceError(ctx, fmt.Errorf("enumerating devices: %w", err))
		return
	}
	device := audio.DeviceAt(devices, index)

	capture, err := s.audio.NewCapture(device, audio.CaptureConfig{SampleRate: audio.SampleRate, Channels: 1})
	if err != nil {
		s.deviceError(ctx, fmt.Errorf("opening device: %w", err))
		return
	}

	chunks := make(chan []int16, chunkQueue)
	capture.SetCallback(newChunker(audio.ChunkSize, chunks).write)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		s.deviceError(ctx, fmt.Errorf("starting device: %w", err))
		return
	}

	s.capture = capture
	s.chunks = chunks
	s.opened = true

	name := "system default"
	if device != nil {
		name = device.Name
	}
	log.Infof("recorder: opened %q at %d Hz", name, capture.SampleRate())
	s.emit(ctx, SampleRate{Rate: capture.SampleRate()})
}

func (s *Session) closeDevice() {
	if s.capture == nil {
		return
	}
	s.capture.ClearCallback()
	s.capture.Stop()
	s.capture.Close()
	s.capture = nil
	s.chunks = nil
	s.opened = false
}

func (s *Session) deviceError(ctx context.Context, err error) {
	log.Errorf("recorder: %v", err)
	s.emit(ctx, DeviceError{Message: err.Error()})
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	return mailbox.Emit(ctx, s.events, ev)
}
