// Package doctor runs non-interactive checks of everything a chat
// session depends on and prints a PASS/FAIL line per check.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"voxchat/audio"
	"voxchat/config"
	"voxchat/log"
)

// ErrSkipped marks a check that does not apply to the current config.
var ErrSkipped = errors.New("skipped")

// Timeout bounds each check.
var Timeout = 20 * time.Second

type Check struct {
	Name string
	// Run returns a short detail for the PASS line, or an error.
	Run func(ctx context.Context) (string, error)
}

// Run executes checks in order and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "voxchat doctor - system diagnostics")
	fmt.Fprintln(w, "===================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		detail, err := runOne(ctx, c)
		switch {
		case errors.Is(err, ErrSkipped):
			fmt.Fprintf(w, "  SKIP: %s\n", detail)
		case err != nil:
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			log.Warnf("doctor: %s: %v", c.Name, err)
		default:
			fmt.Fprintf(w, "  PASS: %s\n", detail)
		}
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

func runOne(ctx context.Context, c Check) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	type result struct {
		detail string
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := c.Run(ctx)
		ch <- result{d, err}
	}()
	select {
	case r := <-ch:
		return r.detail, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("timed out after %s", Timeout)
	}
}

// Transcriber is satisfied by *transcriber.Bridge.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, language, modelPath string) (string, error)
}

// Clipboard writes and reads back the system clipboard.
type Clipboard interface {
	Copy(text string) error
	Read() (string, error)
}

// Checks returns the standard check list for cfg.
func Checks(cfg *config.Config, ac audio.Context, tr Transcriber, cb Clipboard) []Check {
	return []Check{
		{Name: "Configuration", Run: func(context.Context) (string, error) {
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return cfg.Path(), nil
		}},
		{Name: "Recording devices", Run: func(context.Context) (string, error) {
			return checkDevices(cfg, ac)
		}},
		{Name: "Transcription", Run: func(ctx context.Context) (string, error) {
			return checkTranscription(ctx, cfg, tr)
		}},
		{Name: "Chat provider", Run: func(context.Context) (string, error) {
			return checkProvider(cfg)
		}},
		{Name: "Speech", Run: func(context.Context) (string, error) {
			key, voiceID, ok := cfg.Voice()
			if !ok || key == "" {
				return "no " + config.VoiceProvider + " provider key", ErrSkipped
			}
			if voiceID == "" {
				return "", fmt.Errorf("no voice id configured for %s model", config.VoiceProvider)
			}
			return "voice " + voiceID, nil
		}},
		{Name: "Clipboard", Run: func(context.Context) (string, error) {
			return checkClipboard(cb)
		}},
	}
}

func checkDevices(cfg *config.Config, ac audio.Context) (string, error) {
	devices, err := ac.Devices()
	if err != nil {
		return "", fmt.Errorf("cannot list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("no capture devices found")
	}
	if cfg.RecDevice != "" && audio.IndexOf(devices, cfg.RecDevice) < 0 {
		return "", fmt.Errorf("configured device %q not found (run with -setup)", cfg.RecDevice)
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return fmt.Sprintf("%d found: %s", len(devices), strings.Join(names, ", ")), nil
}

func checkTranscription(ctx context.Context, cfg *config.Config, tr Transcriber) (string, error) {
	backend := cfg.TrBackend
	if backend == "" {
		backend = "whisper"
	}
	if backend == "groq" && cfg.GroqKey() == "" {
		return "", fmt.Errorf("tr_backend is groq but the %s provider has no key", config.GroqProvider)
	}
	// Half a second of silence exercises model loading and one decode.
	start := time.Now()
	if _, err := tr.Transcribe(ctx, make([]float32, audio.SampleRate/2), cfg.TrLang, cfg.TrModel); err != nil {
		return "", fmt.Errorf("%s: %w", backend, err)
	}
	return fmt.Sprintf("%s ready in %s", backend, time.Since(start).Round(time.Millisecond)), nil
}

func checkProvider(cfg *config.Config) (string, error) {
	p, ok := cfg.Active()
	if !ok {
		return "", errors.New("no chat provider selected (sel_chat)")
	}
	if p.URL == "" {
		return "", fmt.Errorf("provider %s has no url", p.Name)
	}
	if p.Key == "" {
		return "", fmt.Errorf("provider %s has no key", p.Name)
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Model), nil
}

func checkClipboard(cb Clipboard) (string, error) {
	marker := fmt.Sprintf("voxchat-doctor-%d", time.Now().UnixNano())
	if err := cb.Copy(marker); err != nil {
		return "", fmt.Errorf("clipboard write failed: %w", err)
	}
	got, err := cb.Read()
	if err != nil {
		return "", fmt.Errorf("clipboard read failed: %w", err)
	}
	if got != marker {
		return "", fmt.Errorf("clipboard mismatch: wrote %q, got %q", marker, got)
	}
	return "write/read verified", nil
}
