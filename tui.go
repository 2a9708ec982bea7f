package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voxchat/app"
	"voxchat/mailbox"
	"voxchat/meter"
)

// Sink messages, delivered to the program through tuiSink.
type settingsMsg struct{ View app.View }
type recordingMsg struct{ On bool }
type levelMsg struct {
	DB   float64
	Bars int
}
type queryMsg struct{ Text string }
type resultMsg struct{ Markdown string }
type statusMsg struct{ Text string }
type errorMsg struct{ Text string }
type sinkClosedMsg struct{}

// tuiSink forwards coordinator output into a channel the model drains
// one message at a time.
type tuiSink struct {
	msgs chan tea.Msg
	done <-chan struct{}
}

func newTUISink(done <-chan struct{}) *tuiSink {
	return &tuiSink{msgs: make(chan tea.Msg, mailbox.Capacity), done: done}
}

func (s *tuiSink) post(msg tea.Msg) {
	select {
	case s.msgs <- msg:
	case <-s.done:
	}
}

func (s *tuiSink) Settings(v app.View) { s.post(settingsMsg{View: v}) }
func (s *tuiSink) Recording(on bool)   { s.post(recordingMsg{On: on}) }
func (s *tuiSink) Query(text string)   { s.post(queryMsg{Text: text}) }
func (s *tuiSink) Result(md string)    { s.post(resultMsg{Markdown: md}) }
func (s *tuiSink) Status(text string)  { s.post(statusMsg{Text: text}) }
func (s *tuiSink) Error(msg string)    { s.post(errorMsg{Text: msg}) }

// Level is dropped rather than queued when the UI falls behind.
func (s *tuiSink) Level(db float64, bars int) {
	select {
	case s.msgs <- levelMsg{DB: db, Bars: bars}:
	default:
	}
}

func waitForSink(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return sinkClosedMsg{}
		}
		return msg
	}
}

type tuiModel struct {
	sink     <-chan tea.Msg
	dispatch func(app.Action) error

	view      app.View
	recording bool
	levelDB   float64
	bars      int
	query     string
	result    string
	status    string
	errText   string
	editing   bool
	width     int
	height    int
}

func newTUIModel(sink <-chan tea.Msg, dispatch func(app.Action) error) tuiModel {
	return tuiModel{sink: sink, dispatch: dispatch, levelDB: meter.InitialLevel}
}

func (m tuiModel) Init() tea.Cmd {
	return waitForSink(m.sink)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)

	case sinkClosedMsg:
		return m, nil

	case settingsMsg:
		m.view = msg.View
		m.recording = msg.View.Recording
	case recordingMsg:
		m.recording = msg.On
	case levelMsg:
		m.levelDB = msg.DB
		m.bars = msg.Bars
	case queryMsg:
		m.query = msg.Text
	case resultMsg:
		m.result = msg.Markdown
	case statusMsg:
		m.status = msg.Text
	case errorMsg:
		m.errText = msg.Text
	default:
		return m, nil
	}
	return m, waitForSink(m.sink)
}

func (m tuiModel) send(a app.Action) tuiModel {
	if err := m.dispatch(a); err != nil {
		m.errText = err.Error()
	}
	return m
}

// next returns the entry after current in list, wrapping around.
func next(list []string, current string) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	i := slices.Index(list, current)
	return list[(i+1)%len(list)], true
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r", " ":
		m = m.send(app.ToggleRecord{})
	case "i", "e":
		m.editing = true
	case "enter":
		m = m.send(app.Ask{})
	case "s":
		m = m.send(app.StopChat{})
	case "p":
		m = m.send(app.SetPlay{On: !m.view.Play})
	case "d":
		if name, ok := next(m.view.Devices, m.view.Device); ok {
			m = m.send(app.SelectDevice{Name: name})
		}
	case "l":
		if code, ok := next(m.view.Languages, m.view.Language); ok {
			m = m.send(app.SelectLanguage{Code: code})
		}
	case "m":
		if name, ok := next(m.view.Providers, m.view.Provider); ok {
			m = m.send(app.SelectProvider{Name: name})
		}
	case "t":
		if name, ok := next(m.view.Themes, m.view.Theme); ok {
			m = m.send(app.SelectTheme{Name: name})
		}
	case "+", "=":
		m = m.send(app.FontSize{Delta: 1})
	case "-":
		m = m.send(app.FontSize{Delta: -1})
	case "c":
		m = m.send(app.CopyResult{})
	case "y":
		m = m.send(app.CopyCode{})
	case "ctrl+s":
		m = m.send(app.SaveSettings{})
	case "x":
		m = m.send(app.DismissError{})
	}
	return m, nil
}

func (m tuiModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = false
		m = m.send(app.SetQuery{Text: m.query})
	case tea.KeyEnter:
		m.editing = false
		m = m.send(app.SetQuery{Text: m.query})
		m = m.send(app.Ask{})
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	}
	return m, nil
}

type palette struct {
	text, dim, faint, accent, rec, warn lipgloss.Color
}

var palettes = map[string]palette{
	"dark":  {text: "252", dim: "245", faint: "239", accent: "4", rec: "196", warn: "208"},
	"light": {text: "235", dim: "240", faint: "246", accent: "25", rec: "160", warn: "166"},
}

// Bar colours from quiet to loud.
var barColors = []lipgloss.Color{"28", "34", "40", "184", "214", "196"}

func renderMeter(bars int, db float64) string {
	var b strings.Builder
	for i := range meter.MaxBars {
		if i < bars {
			b.WriteString(lipgloss.NewStyle().Foreground(barColors[i%len(barColors)]).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("236")).Render("█"))
		}
	}
	return fmt.Sprintf("%s %4.0f dB", b.String(), max(db, -99))
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	pal, ok := palettes[m.view.Theme]
	if !ok {
		pal = palettes["dark"]
	}
	text := lipgloss.NewStyle().Foreground(pal.text)
	dim := lipgloss.NewStyle().Foreground(pal.dim)
	faint := lipgloss.NewStyle().Foreground(pal.faint)

	const sideWidth = 34
	var side []string
	if m.recording {
		side = append(side, lipgloss.NewStyle().Foreground(pal.rec).Bold(true).Render("● REC"))
	} else {
		side = append(side, dim.Render("○ STANDBY"))
	}
	side = append(side, renderMeter(m.bars, m.levelDB), "")

	device := m.view.Device
	if device == "" {
		device = "system default"
	}
	play := "off"
	if m.view.Play {
		play = "on"
	}
	side = append(side,
		dim.Render("mic:   ")+text.Render(device),
		dim.Render("chat:  ")+text.Render(orDash(m.view.Provider))+dim.Render(" "+m.view.Model),
		dim.Render("lang:  ")+text.Render(m.view.Language),
		dim.Render("speak: ")+text.Render(play),
		dim.Render("theme: ")+text.Render(fmt.Sprintf("%s, %.0fpt", m.view.Theme, m.view.FontSize)),
	)
	if m.view.Context != "" {
		side = append(side, dim.Render("ctx:   ")+text.Render(truncate(m.view.Context, sideWidth-8)))
	}
	side = append(side, "")
	for _, line := range []string{
		"r record   i edit   enter ask",
		"s stop     p speak  d device",
		"l lang     m chat   t theme",
		"c copy     y code   +/- font",
		"ctrl+s save  x dismiss  q quit",
		"voxchat " + version,
	} {
		side = append(side, faint.Render(line))
	}

	mainWidth := max(20, m.width-sideWidth-1)
	wrap := max(10, mainWidth-2)
	var body strings.Builder

	queryTitle := "Query"
	if m.editing {
		queryTitle = "Query (editing, enter to ask, esc to leave)"
	}
	body.WriteString(dim.Render(queryTitle) + "\n")
	query := m.query
	if m.editing {
		query += "▏"
	}
	for _, line := range wrapText(query, wrap) {
		body.WriteString(lipgloss.NewStyle().Foreground(pal.accent).Render(line) + "\n")
	}
	body.WriteString("\n")

	if m.errText != "" {
		body.WriteString(lipgloss.NewStyle().Foreground(pal.warn).Render("! "+m.errText) + "\n\n")
	}
	if m.status != "" {
		body.WriteString(faint.Render(m.status) + "\n\n")
	}

	if m.result != "" {
		for _, para := range strings.Split(m.result, "\n") {
			for _, line := range wrapText(para, wrap) {
				body.WriteString(text.Render(line) + "\n")
			}
		}
	} else {
		body.WriteString(faint.Render("No response yet"))
	}

	sidePanel := lipgloss.NewStyle().Width(sideWidth).Height(m.height).Render(strings.Join(side, "\n"))
	mainPanel := lipgloss.NewStyle().Width(mainWidth).Height(m.height).PaddingLeft(1).Render(body.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, sidePanel, mainPanel)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:max(0, n-1)]) + "…"
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

func runTUI(ctx context.Context, deps app.Deps, attach attachFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := newTUISink(ctx.Done())
	deps.Sink = sink
	coord := app.New(deps)
	if attach != nil {
		attach(coord.Dispatch)
	}

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	p := tea.NewProgram(newTUIModel(sink.msgs, coord.Dispatch), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	cancel()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
