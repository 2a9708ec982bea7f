package app

import "time"

const (
	silenceWarnEvery    = 8 * time.Second
	silenceAutoCloseDur = 30 * time.Second
	speechMinRatio      = 0.10
	speechClearRatio    = 0.25
	speechPeak          = 0.02
)

// SilenceEvent is what the monitor asks the coordinator to do after a chunk.
type SilenceEvent int

const (
	SilenceNone SilenceEvent = iota
	SilenceWarn
	SilenceWarnClear
	SilenceRepeat
	SilenceAutoClose
)

// speechWindow is a ring of per-chunk speech flags.
type speechWindow struct {
	flags []bool
	seen  int
	hits  int // speech flags currently in the ring
}

func (w *speechWindow) push(speech bool) {
	i := w.seen % len(w.flags)
	if w.full() && w.flags[i] {
		w.hits--
	}
	w.flags[i] = speech
	if speech {
		w.hits++
	}
	w.seen++
}

func (w *speechWindow) full() bool { return w.seen >= len(w.flags) }

// last returns the share of speech among the newest k chunks.
func (w *speechWindow) last(k int) float64 {
	k = min(k, w.seen, len(w.flags))
	if k == 0 {
		return 1
	}
	n := 0
	for back := 1; back <= k; back++ {
		if w.flags[(w.seen-back)%len(w.flags)] {
			n++
		}
	}
	return float64(n) / float64(k)
}

func (w *speechWindow) overall() float64 {
	return float64(w.hits) / float64(len(w.flags))
}

// silenceMonitor turns per-chunk speech flags into warn, clear, repeat
// and auto-stop events. Periods are counted in chunks of the given length.
type silenceMonitor struct {
	warnAt   int
	windowSz int

	recent   speechWindow
	warned   bool
	lastWarn int
}

func newSilenceMonitor(chunk time.Duration) *silenceMonitor {
	warnAt := max(1, int(silenceWarnEvery/chunk))
	windowSz := max(warnAt, int(silenceAutoCloseDur/chunk))
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		recent:   speechWindow{flags: make([]bool, windowSz)},
	}
}

func (m *silenceMonitor) Tick(speech bool) SilenceEvent {
	m.recent.push(speech)
	now := m.recent.seen
	share := m.recent.last(m.warnAt)

	switch {
	case !m.warned && now >= m.warnAt && share < speechMinRatio:
		m.warned, m.lastWarn = true, now
		return SilenceWarn
	case m.warned && share >= speechClearRatio:
		m.warned = false
		return SilenceWarnClear
	case m.recent.full() && m.recent.overall() < speechMinRatio:
		return SilenceAutoClose
	case m.warned && now-m.lastWarn >= m.warnAt:
		m.lastWarn = now
		return SilenceRepeat
	}
	return SilenceNone
}
