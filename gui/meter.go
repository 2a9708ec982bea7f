//go:build gui

package gui

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"voxchat/meter"
)

const (
	segmentWidth  = 18
	segmentHeight = 12
	segmentGap    = 3
)

// Segment colours from quiet to loud.
var (
	segmentOn = [meter.MaxBars]color.Color{
		color.RGBA{0, 135, 0, 255},
		color.RGBA{0, 175, 0, 255},
		color.RGBA{0, 215, 0, 255},
		color.RGBA{215, 215, 0, 255},
		color.RGBA{255, 175, 0, 255},
		color.RGBA{255, 0, 0, 255},
	}
	segmentOff   = color.RGBA{48, 48, 48, 255}
	segmentOffRx = color.RGBA{95, 0, 0, 255}
)

// MeterWidget draws the lit bar count as a row of segments.
type MeterWidget struct {
	widget.BaseWidget
	mu        sync.Mutex
	bars      int
	recording bool
}

func NewMeterWidget() *MeterWidget {
	m := &MeterWidget{}
	m.ExtendBaseWidget(m)
	return m
}

// SetLevel may be called from any goroutine.
func (m *MeterWidget) SetLevel(bars int) {
	m.mu.Lock()
	changed := m.bars != bars
	m.bars = bars
	m.mu.Unlock()
	if changed {
		fyne.Do(m.Refresh)
	}
}

func (m *MeterWidget) SetRecording(r bool) {
	m.mu.Lock()
	m.recording = r
	m.mu.Unlock()
	fyne.Do(m.Refresh)
}

func (m *MeterWidget) MinSize() fyne.Size {
	return fyne.NewSize(meter.MaxBars*(segmentWidth+segmentGap), segmentHeight)
}

func (m *MeterWidget) CreateRenderer() fyne.WidgetRenderer {
	r := &meterRenderer{meter: m}
	for i := range r.rects {
		r.rects[i] = canvas.NewRectangle(segmentOff)
	}
	return r
}

type meterRenderer struct {
	meter *MeterWidget
	rects [meter.MaxBars]*canvas.Rectangle
}

func (r *meterRenderer) Layout(size fyne.Size) {
	cellW := size.Width / meter.MaxBars
	for i, rect := range r.rects {
		rect.Move(fyne.NewPos(float32(i)*cellW, 0))
		rect.Resize(fyne.NewSize(cellW-segmentGap, size.Height))
	}
}

func (r *meterRenderer) MinSize() fyne.Size {
	return r.meter.MinSize()
}

func (r *meterRenderer) Refresh() {
	r.meter.mu.Lock()
	bars := r.meter.bars
	recording := r.meter.recording
	r.meter.mu.Unlock()

	off := color.Color(segmentOff)
	if recording {
		off = segmentOffRx
	}
	for i, rect := range r.rects {
		if i < bars {
			rect.FillColor = segmentOn[i]
		} else {
			rect.FillColor = off
		}
		rect.Refresh()
	}
}

func (r *meterRenderer) Objects() []fyne.CanvasObject {
	objs := make([]fyne.CanvasObject, len(r.rects))
	for i, rect := range r.rects {
		objs[i] = rect
	}
	return objs
}

func (r *meterRenderer) Destroy() {}
