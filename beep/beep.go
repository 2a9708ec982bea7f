// Package beep plays the short cues that mark the start and end of a
// recording.
package beep

import (
	"math"
	"sync"

	"voxchat/audio"
	"voxchat/log"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	startSamples = generateTick(sampleRate, startFreq, 0.2, startVolume, startDecay)
	endSamples = generateTick(sampleRate, endFreq, 0.2, endVolume, endDecay)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

// Cues plays through an audio backend. A nil *Cues or a disabled one is
// silent.
type Cues struct {
	player   audio.Player
	disabled bool
}

func New(player audio.Player) *Cues {
	soundOnce.Do(initSound)
	return &Cues{player: player}
}

func (c *Cues) Disable() { c.disabled = true }

func (c *Cues) play(samples []int16) {
	if c == nil || c.disabled || c.player == nil {
		return
	}
	go func() {
		if err := c.player.Play(samples, sampleRate); err != nil {
			log.Warnf("beep: %v", err)
		}
	}()
}

func (c *Cues) Start() { c.play(startSamples) }
func (c *Cues) End()   { c.play(endSamples) }
func (c *Cues) Error() { c.play(errorSamples) }
