package app

import (
	"testing"
	"time"
)

// At 100ms per chunk the warning period is 80 chunks and auto-stop 300.
const testChunk = 100 * time.Millisecond

// firstEvent feeds pattern(i) until an event of kind want appears and
// returns its chunk index, or -1.
func firstEvent(m *silenceMonitor, want SilenceEvent, limit int, pattern func(i int) bool) int {
	for i := range limit {
		if m.Tick(pattern(i)) == want {
			return i
		}
	}
	return -1
}

func silent(int) bool  { return false }
func talking(int) bool { return true }

func TestSilenceEventTiming(t *testing.T) {
	tests := []struct {
		name    string
		prefill int
		pattern func(int) bool
		want    SilenceEvent
		at      int
	}{
		{"warn after 8s", 0, silent, SilenceWarn, 79},
		{"repeat 8s after warn", 80, silent, SilenceRepeat, 79},
		{"auto stop at 30s", 0, silent, SilenceAutoClose, 299},
		{"speech clears warning", 80, talking, SilenceWarnClear, 19},
		{"no warn while talking", 0, talking, SilenceWarn, -1},
		{"sparse speech keeps warning", 80, func(i int) bool { return i%10 == 0 }, SilenceWarnClear, -1},
		{"70% speech never auto stops", 0, func(i int) bool { return i%10 < 7 }, SilenceAutoClose, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newSilenceMonitor(testChunk)
			for range tt.prefill {
				m.Tick(false)
			}
			if got := firstEvent(m, tt.want, 500, tt.pattern); got != tt.at {
				t.Fatalf("event %d at chunk %d, want %d", tt.want, got, tt.at)
			}
		})
	}
}

func TestAutoCloseWinsOverRepeat(t *testing.T) {
	m := newSilenceMonitor(testChunk)
	warns := 0
	for i := range 400 {
		switch ev := m.Tick(false); {
		case ev == SilenceWarn:
			warns++
		case i >= 299 && ev != SilenceAutoClose:
			t.Fatalf("chunk %d: got %d, want auto stop", i, ev)
		}
	}
	if warns != 1 {
		t.Fatalf("warned %d times, want 1", warns)
	}
}

func TestChunkSizedPeriods(t *testing.T) {
	m := newSilenceMonitor(64 * time.Millisecond)
	if m.warnAt != 125 || m.windowSz != 468 {
		t.Fatalf("warnAt, windowSz = %d, %d; want 125, 468", m.warnAt, m.windowSz)
	}
}

func TestSpeechWindowDropsOldest(t *testing.T) {
	w := speechWindow{flags: make([]bool, 4)}
	for _, s := range []bool{true, true, false, false, false, false} {
		w.push(s)
	}
	if w.hits != 0 || w.overall() != 0 {
		t.Fatalf("hits = %d, overall = %v; want 0", w.hits, w.overall())
	}
	w.push(true)
	if got := w.last(2); got != 0.5 {
		t.Fatalf("last(2) = %v, want 0.5", got)
	}
	if got := (&speechWindow{flags: make([]bool, 4)}).last(3); got != 1 {
		t.Fatalf("empty window share = %v, want 1", got)
	}
}
