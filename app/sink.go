package app

// View is a snapshot of everything a front-end shows outside the
// result pane.
type View struct {
	Devices   []string
	Device    string
	Providers []string
	Provider  string
	Key       string
	URL       string
	Model     string
	Languages []string
	Language  string
	Themes    []string
	Theme     string
	FontSize  float32
	Context   string
	Play      bool
	Recording bool
	Streaming bool
}

// Sink abstracts the display layer so both the Bubble Tea TUI and the
// fyne GUI receive the same events. Calls come from the coordinator
// goroutine; implementations hand them to their UI thread.
type Sink interface {
	Settings(v View)
	Recording(on bool)
	Level(db float64, bars int)
	Query(text string)
	// Result replaces the whole response text.
	Result(markdown string)
	Status(text string)
	// Error shows msg until the next Error call; an empty msg clears it.
	Error(msg string)
}
