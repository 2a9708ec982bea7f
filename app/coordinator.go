// Package app holds the coordinator: the single goroutine that owns
// application state, issues every command to the background sessions and
// consumes every event they emit.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voxchat/audio"
	"voxchat/chat"
	"voxchat/clipboard"
	"voxchat/config"
	"voxchat/history"
	"voxchat/log"
	"voxchat/mailbox"
	"voxchat/meter"
	"voxchat/recorder"
	"voxchat/transcriber"
	"voxchat/voice"
)

// RecState is Stopped, or Recording on Device.
type RecState struct {
	Recording bool
	Device    int
}

type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, language, modelPath string) (string, error)
}

type Clipboard interface {
	Copy(text string) error
}

type Cues interface {
	Start()
	End()
	Error()
}

type History interface {
	Record(ctx context.Context, t history.Turn) error
}

// Deps are the collaborators the coordinator drives.
type Deps struct {
	Config      *config.Config
	Audio       audio.Context
	Transcriber Transcriber
	Synth       voice.Synthesizer
	Clipboard   Clipboard
	Cues        Cues
	History     History // optional
	Sink        Sink
}

type transcript struct {
	text string
	err  error
}

type Coordinator struct {
	deps    Deps
	cfg     *config.Config
	sink    Sink
	actions chan Action

	// owned by the Run goroutine
	devices []audio.DeviceInfo
	rec     RecState
	buffer  []float32
	meter   *meter.Meter
	rate    int
	silence *silenceMonitor
	query   string
	result  strings.Builder
	play    bool
	prompt  string
	asking  bool
	turns   int

	recSend   *mailbox.Sender[recorder.Command]
	chatSend  *mailbox.Sender[chat.Command]
	voiceSend *mailbox.Sender[voice.Command]

	transcripts chan transcript
	ready       chan struct{}
	readyClosed bool
}

func New(deps Deps) *Coordinator {
	return &Coordinator{
		deps:        deps,
		cfg:         deps.Config,
		sink:        deps.Sink,
		actions:     make(chan Action, mailbox.Capacity),
		meter:       meter.New(audio.SampleRate, audio.ChunkSize),
		rate:        audio.SampleRate,
		rec:         RecState{Device: audio.DefaultDevice},
		transcripts: make(chan transcript, 1),
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the recorder, chat and voice sessions have all
// reported in.
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

func (c *Coordinator) checkReady() {
	if c.readyClosed || c.recSend == nil || c.chatSend == nil || c.voiceSend == nil {
		return
	}
	c.readyClosed = true
	close(c.ready)
	c.sink.Status("ready")
}

var ErrBusy = errors.New("app: too many pending actions")

// Dispatch queues a user action. It never blocks.
func (c *Coordinator) Dispatch(a Action) error {
	select {
	case c.actions <- a:
		return nil
	default:
		return ErrBusy
	}
}

// Run starts the background sessions and processes events until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	devices, err := c.deps.Audio.Devices()
	if err != nil {
		c.sink.Error(fmt.Sprintf("listing audio devices: %v", err))
	}
	c.devices = devices
	c.rec.Device = audio.IndexOf(devices, c.cfg.RecDevice)

	recEvents := recorder.Start(ctx, c.deps.Audio, c.rec.Device)
	chatEvents := chat.Start(ctx)
	voiceEvents := voice.Start(ctx, c.deps.Synth, c.deps.Audio)

	provider, _ := c.cfg.Active()
	log.SessionStart(c.deviceName(), provider.Name, c.cfg.TrLang)
	defer func() { log.SessionEnd(c.turns) }()

	c.pushSettings()

	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-c.actions:
			c.handleAction(ctx, a)
		case ev, ok := <-recEvents:
			if !ok {
				recEvents = nil
				c.recSend = nil
				c.sink.Error("recorder stopped")
				continue
			}
			c.handleRecorder(ctx, ev)
		case ev, ok := <-chatEvents:
			if !ok {
				chatEvents = nil
				c.chatSend = nil
				continue
			}
			c.handleChat(ctx, ev)
		case ev, ok := <-voiceEvents:
			if !ok {
				voiceEvents = nil
				c.voiceSend = nil
				continue
			}
			c.handleVoice(ev)
		case t := <-c.transcripts:
			c.handleTranscript(t)
		}
	}
}

func (c *Coordinator) handleRecorder(ctx context.Context, ev recorder.Event) {
	switch e := ev.(type) {
	case recorder.Ready:
		c.recSend = e.Sender
		log.Info("recorder ready")
		c.checkReady()
	case recorder.SampleRate:
		c.rate = e.Rate
		c.meter.SetSampleRate(e.Rate)
	case recorder.SamplesCaptured:
		peak := audio.Peak(e.Samples)
		c.meter.Update(peak)
		c.sink.Level(c.meter.Level(), c.meter.Bars())
		if c.rec.Recording {
			c.buffer = append(c.buffer, audio.Int16ToFloat32(e.Samples)...)
			c.checkSilence(ctx, peak >= speechPeak)
		}
	case recorder.DeviceError:
		c.sink.Error(e.Message)
	}
}

func (c *Coordinator) handleChat(ctx context.Context, ev chat.Event) {
	switch e := ev.(type) {
	case chat.Ready:
		c.chatSend = e.Sender
		if p, ok := c.cfg.Active(); ok && p.URL != "" {
			c.send(c.chatSend.Send(chat.SetProvider{Provider: p}), "chat")
		}
		c.checkReady()
	case chat.MessageFragment:
		c.result.WriteString(e.Text)
		c.sink.Result(c.result.String())
		if c.play {
			c.send(c.voiceSend.Send(voice.Read{Text: e.Text}), "voice")
		}
	case chat.StreamEnded:
		c.asking = false
		c.turns++
		c.sink.Status("")
		c.recordTurn(ctx)
		c.pushSettings()
	case chat.Error:
		c.asking = false
		c.sink.Error(e.Message)
		c.pushSettings()
	}
}

func (c *Coordinator) handleVoice(ev voice.Event) {
	switch e := ev.(type) {
	case voice.Ready:
		c.voiceSend = e.Sender
		if key, voiceID, ok := c.cfg.Voice(); ok {
			err := errors.Join(
				c.voiceSend.Send(voice.SetKey{Key: key}),
				c.voiceSend.Send(voice.SetVoice{VoiceID: voiceID}),
			)
			c.send(err, "voice")
		}
		c.checkReady()
	case voice.Error:
		c.play = false
		c.sink.Error(e.Message)
		c.pushSettings()
	case voice.Finished:
		log.Debugf("voice: sentence finished")
	}
}

// skipSpeech drops unspoken fragments of the previous answer.
func (c *Coordinator) skipSpeech() {
	if c.voiceSend == nil {
		return
	}
	if err := c.voiceSend.Send(voice.Skip{}); err != nil {
		log.Warnf("send to voice: %v", err)
	}
}

func (c *Coordinator) handleTranscript(t transcript) {
	c.sink.Status("")
	if t.err != nil {
		c.errorCue()
		c.sink.Error(fmt.Sprintf("transcription failed: %v", t.err))
		return
	}
	c.query = t.text
	c.sink.Query(t.text)
}

func (c *Coordinator) handleAction(ctx context.Context, a Action) {
	switch act := a.(type) {
	case ToggleRecord:
		c.toggleRecord(ctx)
	case SelectDevice:
		c.buffer = nil
		c.rec.Device = audio.IndexOf(c.devices, act.Name)
		if c.rec.Device == audio.DefaultDevice {
			c.cfg.RecDevice = ""
		} else {
			c.cfg.RecDevice = act.Name
		}
		c.send(c.recSend.Send(recorder.SetDevice{Index: c.rec.Device}), "recorder")
		c.pushSettings()
	case SetQuery:
		c.query = act.Text
	case Ask:
		c.ask()
	case StopChat:
		c.skipSpeech()
		if c.send(c.chatSend.Send(chat.Stop{}), "chat") {
			c.asking = false
			c.pushSettings()
		}
	case SetPlay:
		c.play = act.On
		c.pushSettings()
	case SelectLanguage:
		c.cfg.TrLang = act.Code
		c.pushSettings()
	case SelectProvider:
		if _, ok := c.cfg.AIChats[act.Name]; !ok {
			c.sink.Error(fmt.Sprintf("unknown provider %q", act.Name))
			return
		}
		c.cfg.SelChat = act.Name
		c.syncProvider()
	case EditProvider:
		if !c.cfg.UpdateActive(act.Key, act.URL, act.Model) {
			c.sink.Error("no provider selected")
			return
		}
		c.syncProvider()
	case SetContext:
		c.cfg.PromptContext = act.Text
		c.pushSettings()
	case SelectTheme:
		c.cfg.Theme = act.Name
		c.pushSettings()
	case FontSize:
		c.cfg.FontSize = config.ClampFontSize(c.cfg.FontSize + act.Delta)
		c.pushSettings()
	case SaveSettings:
		if err := c.cfg.Validate(); err != nil {
			c.sink.Error(err.Error())
			return
		}
		if err := c.cfg.Save(); err != nil {
			c.sink.Error(err.Error())
			return
		}
		c.sink.Status("settings saved")
	case CopyResult:
		c.copy(c.result.String())
	case CopyCode:
		if code, ok := clipboard.CodeBlock(c.result.String()); ok {
			c.copy(code)
		} else {
			c.sink.Status("no code block in result")
		}
	case DismissError:
		c.sink.Error("")
	}
}

func (c *Coordinator) toggleRecord(ctx context.Context) {
	if !c.rec.Recording {
		if !c.send(c.recSend.Send(recorder.SetDevice{Index: c.rec.Device}), "recorder") {
			return
		}
		c.buffer = nil
		c.rec.Recording = true
		chunk := time.Duration(audio.ChunkSize) * time.Second / time.Duration(max(1, c.rate))
		c.silence = newSilenceMonitor(chunk)
		if c.deps.Cues != nil {
			c.deps.Cues.Start()
		}
		c.sink.Recording(true)
		c.pushSettings()
		return
	}

	c.rec.Recording = false
	c.silence = nil
	if c.deps.Cues != nil {
		c.deps.Cues.End()
	}
	c.sink.Recording(false)
	c.pushSettings()

	samples := c.buffer
	c.buffer = nil
	lang := strings.ToLower(c.cfg.TrLang)
	model := c.cfg.TrModel
	c.sink.Status("transcribing")

	go func() {
		start := time.Now()
		text, err := c.deps.Transcriber.Transcribe(ctx, samples, lang, model)
		log.Debugf("transcribed %d samples in %v", len(samples), time.Since(start))
		select {
		case c.transcripts <- transcript{text: text, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Coordinator) checkSilence(ctx context.Context, speech bool) {
	if c.silence == nil {
		return
	}
	switch c.silence.Tick(speech) {
	case SilenceWarn:
		c.sink.Status("no voice detected")
		c.errorCue()
	case SilenceRepeat:
		c.errorCue()
	case SilenceWarnClear:
		c.sink.Status("")
	case SilenceAutoClose:
		log.Info("no speech for 30s, stopping recording")
		c.toggleRecord(ctx)
	}
}

func (c *Coordinator) errorCue() {
	if c.deps.Cues != nil {
		c.deps.Cues.Error()
	}
}

func (c *Coordinator) ask() {
	c.result.Reset()
	c.sink.Result("")
	c.skipSpeech()
	if !c.send(c.chatSend.Send(chat.SetContext{Text: c.cfg.PromptContext}), "chat") {
		return
	}
	if !c.send(c.chatSend.Send(chat.Prompt{Text: c.query}), "chat") {
		return
	}
	c.prompt = c.query
	c.asking = true
	c.sink.Status("waiting for response")
	c.pushSettings()
}

func (c *Coordinator) syncProvider() {
	if p, ok := c.cfg.Active(); ok {
		c.send(c.chatSend.Send(chat.SetProvider{Provider: p}), "chat")
	}
	c.pushSettings()
}

func (c *Coordinator) recordTurn(ctx context.Context) {
	if c.deps.History == nil {
		return
	}
	p, _ := c.cfg.Active()
	err := c.deps.History.Record(ctx, history.Turn{
		Provider: p.Name,
		Model:    p.Model,
		Context:  c.cfg.PromptContext,
		Prompt:   c.prompt,
		Response: c.result.String(),
	})
	if err != nil {
		log.Warnf("history: %v", err)
	}
}

func (c *Coordinator) copy(text string) {
	if c.deps.Clipboard == nil {
		return
	}
	if err := c.deps.Clipboard.Copy(text); err != nil {
		c.sink.Error(fmt.Sprintf("copy failed: %v", err))
		return
	}
	c.sink.Status("copied")
}

// send surfaces a failed command delivery to the user. It reports whether
// the command was queued.
func (c *Coordinator) send(err error, task string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, mailbox.ErrClosed):
		c.sink.Error(fmt.Sprintf("%s is not running", task))
	case errors.Is(err, mailbox.ErrFull):
		c.sink.Error(fmt.Sprintf("%s is busy, try again", task))
	default:
		c.sink.Error(fmt.Sprintf("%s: %v", task, err))
	}
	log.Warnf("send to %s: %v", task, err)
	return false
}

func (c *Coordinator) deviceName() string {
	if d := audio.DeviceAt(c.devices, c.rec.Device); d != nil {
		return d.Name
	}
	return "system default"
}

func (c *Coordinator) pushSettings() {
	p, _ := c.cfg.Active()
	names := make([]string, len(c.devices))
	for i, d := range c.devices {
		names[i] = d.Name
	}
	c.sink.Settings(View{
		Devices:   names,
		Device:    c.deviceName(),
		Providers: c.cfg.ProviderNames(),
		Provider:  c.cfg.SelChat,
		Key:       p.Key,
		URL:       p.URL,
		Model:     p.Model,
		Languages: config.Languages,
		Language:  c.cfg.TrLang,
		Themes:    config.Themes,
		Theme:     c.cfg.Theme,
		FontSize:  c.cfg.FontSize,
		Context:   c.cfg.PromptContext,
		Play:      c.play,
		Recording: c.rec.Recording,
		Streaming: c.asking,
	})
}

// Compile-time checks for the production collaborators.
var (
	_ Transcriber = (*transcriber.Bridge)(nil)
	_ Clipboard   = clipboard.System{}
	_ History     = (*history.Store)(nil)
)
