package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"voxchat/app"
	"voxchat/audio"
	"voxchat/beep"
	"voxchat/clipboard"
	"voxchat/config"
	"voxchat/doctor"
	"voxchat/history"
	"voxchat/hotkey"
	"voxchat/log"
	"voxchat/shutdown"
	"voxchat/transcriber"
	"voxchat/voice"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	setup      bool
	doctor     bool
	hotkey     bool
	gui        bool
	version    bool
	debug      bool
	quiet      bool
	history    int
	fakeWAV    string
	script     string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("voxchat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", config.DefaultPath(), "config file (.toml, .yaml or .yml)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&o.setup, "setup", false, "pick the recording device and save it to the config")
	fs.BoolVar(&o.doctor, "doctor", false, "run system diagnostics and exit")
	fs.BoolVar(&o.hotkey, "hotkey", false, "toggle recording with "+hotkey.Chord+" from any window (tap to toggle, hold to talk)")
	fs.BoolVar(&o.gui, "gui", false, "run the desktop window instead of the terminal UI")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.BoolVar(&o.debug, "debug", false, "verbose diagnostics log")
	fs.BoolVar(&o.quiet, "quiet", false, "no start/stop beeps")
	fs.IntVar(&o.history, "history", 0, "print the last N chat turns and exit")
	fs.StringVar(&o.fakeWAV, "fake", "", "capture from a 16 kHz mono WAV file instead of a microphone")
	fs.StringVar(&o.script, "test", "", "headless mode: drive the app with commands from this file (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if o.history < 0 {
		return o, errors.New("-history must not be negative")
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Printf("voxchat %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SetDebug(opts.debug)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Errorf("config %s: %v", opts.configPath, err)
		return 1
	}

	if opts.history > 0 {
		return printHistory(cfg, opts.history, os.Stdout)
	}

	ac, err := openAudio(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		log.Errorf("audio context init error: %v", err)
		return 1
	}
	defer ac.Close()

	if opts.setup {
		dev, err := audio.SelectDevice(ac, cfg.RecDevice)
		switch {
		case errors.Is(err, audio.ErrCancelled):
			return 0
		case err != nil:
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
			fmt.Fprintln(os.Stderr, "Falling back to default device")
		default:
			cfg.RecDevice = ""
			if dev != nil {
				cfg.RecDevice = dev.Name
			}
			if err := cfg.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}

	bridge := transcriber.NewBridge(engineLoader(cfg))
	defer bridge.Close()

	if opts.doctor {
		checks := append(doctor.Checks(cfg, ac, bridge, clipboard.System{}), doctor.Check{
			Name: "Global hotkey",
			Run:  func(context.Context) (string, error) { return hotkey.Diagnose() },
		})
		return doctor.Run(context.Background(), os.Stdout, checks)
	}

	cues := beep.New(ac)
	if opts.quiet || opts.script != "" {
		cues.Disable()
	}

	deps := app.Deps{
		Config:      cfg,
		Audio:       ac,
		Transcriber: bridge,
		Synth:       voice.NewElevenLabs(""),
		Clipboard:   clipboard.System{},
		Cues:        cues,
	}
	if store, err := history.Open(history.DefaultPath(cfg.Path())); err != nil {
		log.Warnf("history disabled: %v", err)
	} else {
		defer store.Close()
		deps.History = store
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	var attach attachFunc
	if opts.hotkey {
		attach = func(dispatch func(app.Action) error) { go listenHotkey(ctx, hotkey.New(), dispatch) }
	}

	switch {
	case opts.script != "":
		err = runScript(ctx, deps, opts.script)
	case opts.gui:
		err = runGUI(ctx, deps, attach)
	default:
		err = runTUI(ctx, deps, attach)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Errorf("%v", err)
		return 1
	}
	return 0
}

// attachFunc receives the coordinator's dispatcher once it exists.
type attachFunc = func(dispatch func(app.Action) error)

func listenHotkey(ctx context.Context, hk hotkey.Hotkey, dispatch func(app.Action) error) {
	err := hotkey.Listen(ctx, hk, hotkey.LongPress, func() {
		if err := dispatch(app.ToggleRecord{}); err != nil {
			log.Warnf("hotkey: %v", err)
		}
	})
	if err != nil {
		log.Warnf("global hotkey disabled: %v", err)
	}
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func openAudio(opts options) (audio.Context, error) {
	if opts.fakeWAV == "" {
		return audio.NewContext()
	}
	chunk := time.Duration(audio.ChunkSize) * time.Second / audio.SampleRate
	return audio.NewFakeContextFromWAV(opts.fakeWAV, chunk, "WAV file")
}

func engineLoader(cfg *config.Config) transcriber.Loader {
	if cfg.TrBackend == "groq" {
		return transcriber.GroqLoader(cfg.GroqKey(), "")
	}
	return transcriber.LoadWhisper
}

func printHistory(cfg *config.Config, n int, w io.Writer) int {
	store, err := history.Open(history.DefaultPath(cfg.Path()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	turns, err := store.Recent(context.Background(), n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	writeHistory(w, turns)
	return 0
}

func writeHistory(w io.Writer, turns []history.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No chat history yet.")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(w, "[%s] %s/%s\n> %s\n%s\n\n", t.CreatedAt.Format("2006-01-02 15:04"), t.Provider, t.Model, t.Prompt, t.Response)
	}
}
