package doctor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxchat/audio"
	"voxchat/config"
	"voxchat/transcriber"
)

const goodConfig = `
sel_chat = "OpenAI"
rec_device = "Mic A"
tr_model = "/models/ggml-base.bin"

[ai_chats.OpenAI]
key = "sk-test"
url = "https://api.openai.com/v1"
model = "gpt-4o"
`

type memClipboard struct {
	text    string
	readErr error
}

func (m *memClipboard) Copy(text string) error { m.text = text; return nil }

func (m *memClipboard) Read() (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.text, nil
}

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxchat.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestAllChecksPass(t *testing.T) {
	cfg := loadConfig(t, goodConfig)
	engine := transcriber.NewFake("", nil)
	ac := audio.NewFakeContext(nil, 0, "Mic A", "Mic B")

	var out bytes.Buffer
	code := Run(context.Background(), &out, Checks(cfg, ac, transcriber.NewBridge(engine.Loader()), &memClipboard{}))

	require.Equal(t, 0, code, out.String())
	require.Contains(t, out.String(), "[1/6] Configuration")
	require.Contains(t, out.String(), "2 found: Mic A, Mic B")
	require.Contains(t, out.String(), "OpenAI (gpt-4o)")
	require.Contains(t, out.String(), "SKIP: no Elevenlabs provider key")
	require.Contains(t, out.String(), "All checks passed!")

	calls := engine.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Samples, audio.SampleRate/2)
	require.Equal(t, "en", calls[0].Language)
}

func TestFailuresAreCounted(t *testing.T) {
	cfg := loadConfig(t, `rec_device = "USB Mic"`)
	engine := transcriber.NewFake("", errors.New("model not found"))
	ac := audio.NewFakeContext(nil, 0, "Mic A")
	clip := &memClipboard{readErr: errors.New("no display")}

	var out bytes.Buffer
	code := Run(context.Background(), &out, Checks(cfg, ac, transcriber.NewBridge(engine.Loader()), clip))

	require.Equal(t, 1, code)
	text := out.String()
	require.Contains(t, text, `configured device "USB Mic" not found`)
	require.Contains(t, text, "whisper: ")
	require.Contains(t, text, "model not found")
	require.Contains(t, text, "no chat provider selected")
	require.Contains(t, text, "clipboard read failed: no display")
	require.Contains(t, text, "4 check(s) failed")
}

func TestGroqWithoutKeyFails(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	cfg := loadConfig(t, "tr_backend = \"groq\"\n"+goodConfig)
	_, err := checkTranscription(context.Background(), cfg, transcriber.NewBridge(transcriber.NewFake("", nil).Loader()))
	require.ErrorContains(t, err, "tr_backend is groq")
}

func TestCheckTimesOut(t *testing.T) {
	old := Timeout
	Timeout = 10 * time.Millisecond
	defer func() { Timeout = old }()

	release := make(chan struct{})
	defer close(release)
	block := Check{Name: "hang", Run: func(context.Context) (string, error) {
		<-release
		return "", nil
	}}
	var out bytes.Buffer
	require.Equal(t, 1, Run(context.Background(), &out, []Check{block}))
	require.True(t, strings.Contains(out.String(), "timed out"), out.String())
}
