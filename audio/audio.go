// Package audio wraps the platform capture and playback backends.
// PulseAudio is used on Linux and miniaudio everywhere else.
package audio

import "strings"

const (
	// SampleRate is the capture rate the transcriber expects.
	SampleRate = 16000
	// ChunkSize is the number of samples delivered per capture chunk.
	ChunkSize = 1024
	// DefaultDevice selects the system default input.
	DefaultDevice = -1
)

var btKeywords = []string{
	"airpods", "bose", "jabra", "galaxy buds", "pixel buds",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth reports whether the device name looks like a headset
// that drops to a narrowband profile while the microphone is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	// Play blocks until the mono S16 samples have been played.
	Play(samples []int16, sampleRate int) error
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	SampleRate() int
}

// Player is the playback half of a Context.
type Player interface {
	Play(samples []int16, sampleRate int) error
}

// DeviceAt resolves a device index against the enumerated list.
// Negative or out-of-range indexes select the system default (nil).
func DeviceAt(devices []DeviceInfo, index int) *DeviceInfo {
	if index < 0 || index >= len(devices) {
		return nil
	}
	d := devices[index]
	return &d
}

// IndexOf returns the position of the device with the given name, or
// DefaultDevice when no device matches.
func IndexOf(devices []DeviceInfo, name string) int {
	for i, d := range devices {
		if d.Name == name {
			return i
		}
	}
	return DefaultDevice
}
