package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const WAVHeaderSize = 44

// FakeContext replays fixed PCM through every capture it opens and
// records what is played back. It is used by tests and by -fake runs.
type FakeContext struct {
	devices  []DeviceInfo
	pcm      []byte
	interval time.Duration

	mu       sync.Mutex
	opened   []string
	played   [][]int16
	failID   string
	playErr  error
	captures []*FakeCapture
}

// NewFakeContext returns a context with the named devices whose captures
// loop over pcm (silence when nil), one ChunkSize chunk per interval.
// With a zero interval nothing is delivered until Feed is called.
func NewFakeContext(pcm []byte, interval time.Duration, names ...string) *FakeContext {
	f := &FakeContext{pcm: pcm, interval: interval}
	for i, n := range names {
		f.devices = append(f.devices, DeviceInfo{ID: fmt.Sprintf("fake-%d", i), Name: n})
	}
	return f
}

// NewFakeContextFromWAV loads 16 kHz mono PCM from a WAV file.
func NewFakeContextFromWAV(wavPath string, interval time.Duration, names ...string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return NewFakeContext(data, interval, names...), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.devices, nil }
func (f *FakeContext) Close()                         {}

// FailDevice makes NewCapture fail for the device with the given ID.
func (f *FakeContext) FailDevice(id string) {
	f.mu.Lock()
	f.failID = id
	f.mu.Unlock()
}

// FailPlayback makes every Play call return err.
func (f *FakeContext) FailPlayback(err error) {
	f.mu.Lock()
	f.playErr = err
	f.mu.Unlock()
}

// Opened lists the device names captures were opened for, in order.
// The system default shows up as "default".
func (f *FakeContext) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// Running counts the captures currently started.
func (f *FakeContext) Running() int {
	f.mu.Lock()
	captures := append([]*FakeCapture(nil), f.captures...)
	f.mu.Unlock()
	n := 0
	for _, c := range captures {
		c.mu.Lock()
		if c.running {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

// Played returns every buffer handed to Play.
func (f *FakeContext) Played() [][]int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int16(nil), f.played...)
}

func (f *FakeContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := "default"
	if device != nil {
		if device.ID == f.failID {
			return nil, fmt.Errorf("fake device %q unavailable", device.Name)
		}
		name = device.Name
	}
	f.opened = append(f.opened, name)
	c := &FakeCapture{pcm: f.pcm, interval: f.interval, rate: int(config.SampleRate)}
	f.captures = append(f.captures, c)
	return c, nil
}

// Feed delivers samples to every started capture, as one callback.
func (f *FakeContext) Feed(samples []int16) {
	f.mu.Lock()
	captures := append([]*FakeCapture(nil), f.captures...)
	f.mu.Unlock()
	data := Int16ToBytes(samples)
	for _, c := range captures {
		c.mu.Lock()
		cb := c.cb
		running := c.running
		c.mu.Unlock()
		if cb != nil && running {
			cb(data, uint32(len(samples)))
		}
	}
}

func (f *FakeContext) Play(samples []int16, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, append([]int16(nil), samples...))
	return nil
}

type FakeCapture struct {
	pcm      []byte
	interval time.Duration
	rate     int

	mu       sync.Mutex
	cb       DataCallback
	running  bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SampleRate() int { return f.rate }

func (f *FakeCapture) Start() error {
	if f.stopCh != nil {
		return errors.New("fake capture already started")
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	if f.interval <= 0 {
		close(f.feedDone)
		return nil
	}

	chunkBytes := ChunkSize * 2
	go func() {
		defer close(f.feedDone)
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(f.interval):
			}

			chunk := make([]byte, chunkBytes)
			if len(f.pcm) > 0 {
				for i := range chunk {
					chunk[i] = f.pcm[pos]
					pos = (pos + 1) % len(f.pcm)
				}
			}

			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(chunk, ChunkSize)
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
