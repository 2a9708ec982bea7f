// Package meter implements the smoothed VU level shown while the
// microphone is open.
package meter

import "math"

const (
	DefaultAttack   = 0.1  // seconds
	DefaultRelease  = 0.3  // seconds
	DefaultMinLevel = 1e-9 // linear amplitude floor
	// InitialLevel is the smoothed level before any input, in dB.
	InitialLevel = -99.0
	// MaxBars is the number of segments in the display.
	MaxBars = 6
)

// barThresholds are the dB levels at which each successive bar lights.
var barThresholds = [MaxBars]float64{-60, -50, -40, -30, -20, -10}

// Meter is an attack/release envelope follower over per-chunk levels.
// It is not safe for concurrent use; the coordinator owns it.
type Meter struct {
	sampleRate float64
	chunk      float64
	attack     float64
	release    float64
	minLevel   float64

	attackCoeff  float64
	releaseCoeff float64
	smoothed     float64
}

// New returns a meter for chunks of the given size at sampleRate.
func New(sampleRate, chunk int) *Meter {
	m := &Meter{
		sampleRate: float64(sampleRate),
		chunk:      float64(chunk),
		attack:     DefaultAttack,
		release:    DefaultRelease,
		minLevel:   DefaultMinLevel,
		smoothed:   InitialLevel,
	}
	m.recompute()
	return m
}

func (m *Meter) recompute() {
	m.attackCoeff = coefficient(m.attack, m.sampleRate, m.chunk)
	m.releaseCoeff = coefficient(m.release, m.sampleRate, m.chunk)
}

// coefficient converts a time constant into a per-chunk smoothing factor.
func coefficient(seconds, sampleRate, chunk float64) float64 {
	steps := seconds * sampleRate / chunk
	if steps <= 0 {
		return 0
	}
	return math.Exp(-1 / steps)
}

// Update feeds one linear amplitude in [0, 1].
func (m *Meter) Update(level float64) {
	db := 20 * math.Log10(math.Max(m.minLevel, level))
	coeff := m.releaseCoeff
	if db > m.smoothed {
		coeff = m.attackCoeff
	}
	m.smoothed = coeff*m.smoothed + (1-coeff)*db
}

// Level returns the smoothed level in dB.
func (m *Meter) Level() float64 { return m.smoothed }

// Bars returns how many display segments are lit, 0 through MaxBars.
func (m *Meter) Bars() int {
	n := 0
	for _, th := range barThresholds {
		if m.smoothed >= th {
			n++
		}
	}
	return n
}

// Reset returns the meter to its initial level.
func (m *Meter) Reset() { m.smoothed = InitialLevel }

func (m *Meter) SetSampleRate(sampleRate int) {
	m.sampleRate = float64(sampleRate)
	m.recompute()
}

func (m *Meter) SetChunk(chunk int) {
	m.chunk = float64(chunk)
	m.recompute()
}

func (m *Meter) SetAttackTime(seconds float64) {
	m.attack = seconds
	m.recompute()
}

func (m *Meter) SetReleaseTime(seconds float64) {
	m.release = seconds
	m.recompute()
}

func (m *Meter) SetMinLevel(level float64) {
	m.minLevel = level
}
