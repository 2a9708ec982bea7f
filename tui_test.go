package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"voxchat/app"
)

type recorded struct{ actions []app.Action }

func (r *recorded) dispatch(a app.Action) error {
	r.actions = append(r.actions, a)
	return nil
}

func newTestModel() (tuiModel, *recorded) {
	r := &recorded{}
	m := newTUIModel(make(chan tea.Msg), r.dispatch)
	m.width, m.height = 100, 30
	return m, r
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m tuiModel, keys ...string) tuiModel {
	for _, k := range keys {
		updated, _ := m.Update(key(k))
		m = updated.(tuiModel)
	}
	return m
}

func TestRecordKeyDispatchesToggle(t *testing.T) {
	m, r := newTestModel()
	press(m, "r", " ")
	if len(r.actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(r.actions))
	}
	for _, a := range r.actions {
		if _, ok := a.(app.ToggleRecord); !ok {
			t.Errorf("action = %T, want ToggleRecord", a)
		}
	}
}

func TestEditQueryThenAsk(t *testing.T) {
	m, r := newTestModel()
	m = press(m, "i", "h", "e", "y", "backspace", "y", " ", "x")
	if !m.editing {
		t.Fatal("should be editing")
	}
	if m.query != "hey x" {
		t.Errorf("query = %q", m.query)
	}
	if len(r.actions) != 0 {
		t.Errorf("keys while editing must not dispatch, got %v", r.actions)
	}

	m = press(m, "enter")
	if m.editing {
		t.Error("enter should leave edit mode")
	}
	if len(r.actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(r.actions))
	}
	if q, ok := r.actions[0].(app.SetQuery); !ok || q.Text != "hey x" {
		t.Errorf("first action = %#v", r.actions[0])
	}
	if _, ok := r.actions[1].(app.Ask); !ok {
		t.Errorf("second action = %T, want Ask", r.actions[1])
	}
}

func TestCycleKeysPickNextEntry(t *testing.T) {
	m, r := newTestModel()
	updated, _ := m.Update(settingsMsg{View: app.View{
		Devices:   []string{"Mic A", "Mic B"},
		Device:    "Mic B",
		Languages: []string{"EN", "PL"},
		Language:  "EN",
		Themes:    []string{"dark", "light"},
		Theme:     "dark",
		Play:      true,
	}})
	m = updated.(tuiModel)
	press(m, "d", "l", "t", "p")

	want := []app.Action{
		app.SelectDevice{Name: "Mic A"},
		app.SelectLanguage{Code: "PL"},
		app.SelectTheme{Name: "light"},
		app.SetPlay{On: false},
	}
	if len(r.actions) != len(want) {
		t.Fatalf("actions = %#v", r.actions)
	}
	for i := range want {
		if r.actions[i] != want[i] {
			t.Errorf("action %d = %#v, want %#v", i, r.actions[i], want[i])
		}
	}
}

func TestCycleWithoutProvidersIsNoop(t *testing.T) {
	m, r := newTestModel()
	press(m, "m")
	if len(r.actions) != 0 {
		t.Errorf("expected no action, got %v", r.actions)
	}
}

func TestSinkMessagesUpdateView(t *testing.T) {
	m, _ := newTestModel()
	for _, msg := range []tea.Msg{
		recordingMsg{On: true},
		levelMsg{DB: -25, Bars: 4},
		queryMsg{Text: "what time is it"},
		resultMsg{Markdown: "It is noon."},
		errorMsg{Text: "voice: no API key set"},
	} {
		updated, cmd := m.Update(msg)
		if cmd == nil {
			t.Errorf("%T should re-arm the sink reader", msg)
		}
		m = updated.(tuiModel)
	}

	out := m.View()
	for _, want := range []string{"REC", "what time is it", "It is noon.", "no API key", "-25 dB"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDispatchErrorShown(t *testing.T) {
	m := newTUIModel(make(chan tea.Msg), func(app.Action) error { return app.ErrBusy })
	m = press(m, "c")
	if m.errText != app.ErrBusy.Error() {
		t.Errorf("errText = %q", m.errText)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if got := wrapText("", 10); len(got) != 1 || got[0] != "" {
		t.Errorf("empty input = %q", got)
	}
}
