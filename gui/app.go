//go:build gui

// Package gui is the fyne desktop front-end.
package gui

import (
	"context"
	"fmt"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"voxchat/app"
	"voxchat/log"
)

// App implements app.Sink. Sink calls arrive on the coordinator
// goroutine and are applied on the fyne thread with fyne.Do.
type App struct {
	fyneApp  fyne.App
	window   fyne.Window
	dispatch func(app.Action) error

	// syncing is set while a View is applied so widget callbacks do not
	// echo the change back as actions.
	syncing bool
	view    app.View

	record   *widget.Button
	meter    *MeterWidget
	levelDB  *widget.Label
	device   *widget.Select
	language *widget.Select
	provider *widget.Select
	theme    *widget.Select
	play     *widget.Check
	key      *widget.Entry
	url      *widget.Entry
	model    *widget.Entry
	context  *widget.Entry
	query    *widget.Entry
	result   *widget.RichText
	status   *widget.Label
	errText  *widget.Label
	errBox   *fyne.Container

	// Present only when the driver supports a system tray.
	trayMenu   *fyne.Menu
	trayRecord *fyne.MenuItem
}

// Run shows the window and drives a coordinator until the window is
// closed or ctx is cancelled. attach, if set, receives the dispatcher
// once the coordinator exists.
func Run(ctx context.Context, deps app.Deps, attach func(dispatch func(app.Action) error)) error {
	a := &App{}
	deps.Sink = a
	coord := app.New(deps)
	a.dispatch = coord.Dispatch
	if attach != nil {
		attach(coord.Dispatch)
	}

	a.fyneApp = fyneapp.NewWithID("io.voxchat.gui")
	a.fyneApp.Settings().SetTheme(&appTheme{light: deps.Config.Theme == "light", textSize: deps.Config.FontSize})
	a.build(deps.Config.Width, deps.Config.Height)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()
	go func() {
		<-ctx.Done()
		fyne.Do(a.fyneApp.Quit)
	}()

	a.window.ShowAndRun()
	cancel()
	return <-done
}

func (a *App) send(act app.Action) {
	if a.syncing {
		return
	}
	if err := a.dispatch(act); err != nil {
		log.Warnf("gui: %v", err)
		a.errText.SetText(err.Error())
		a.errBox.Show()
	}
}

func (a *App) build(width, height float32) {
	a.window = a.fyneApp.NewWindow("voxchat")

	a.record = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() { a.send(app.ToggleRecord{}) })
	a.meter = NewMeterWidget()
	a.levelDB = widget.NewLabel("")
	a.device = widget.NewSelect(nil, func(name string) { a.send(app.SelectDevice{Name: name}) })
	a.device.PlaceHolder = "system default"
	a.language = widget.NewSelect(nil, func(code string) { a.send(app.SelectLanguage{Code: code}) })
	a.play = widget.NewCheck("Speak", func(on bool) { a.send(app.SetPlay{On: on}) })

	a.query = widget.NewMultiLineEntry()
	a.query.SetPlaceHolder("Record or type a question")
	a.query.Wrapping = fyne.TextWrapWord
	a.query.OnChanged = func(s string) { a.send(app.SetQuery{Text: s}) }

	ask := widget.NewButtonWithIcon("Ask", theme.MailSendIcon(), func() { a.send(app.Ask{}) })
	ask.Importance = widget.HighImportance
	stop := widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() { a.send(app.StopChat{}) })
	copyAll := widget.NewButtonWithIcon("Copy", theme.ContentCopyIcon(), func() { a.send(app.CopyResult{}) })
	copyCode := widget.NewButtonWithIcon("Copy code", theme.ContentCopyIcon(), func() { a.send(app.CopyCode{}) })

	a.result = widget.NewRichTextFromMarkdown("")
	a.result.Wrapping = fyne.TextWrapWord
	a.status = widget.NewLabel("")
	a.errText = widget.NewLabel("")
	a.errText.Importance = widget.DangerImportance
	a.errText.Wrapping = fyne.TextWrapWord
	dismiss := widget.NewButtonWithIcon("", theme.CancelIcon(), func() { a.send(app.DismissError{}) })
	a.errBox = container.NewBorder(nil, nil, nil, dismiss, a.errText)
	a.errBox.Hide()

	chat := container.NewBorder(
		container.NewVBox(
			container.NewHBox(a.record, a.meter, a.levelDB, a.play, a.language),
			a.query,
			container.NewHBox(ask, stop, copyAll, copyCode),
			a.errBox,
		),
		a.status, nil, nil,
		container.NewVScroll(a.result),
	)

	a.window.SetContent(container.NewAppTabs(
		container.NewTabItemWithIcon("Chat", theme.MailComposeIcon(), chat),
		container.NewTabItemWithIcon("Settings", theme.SettingsIcon(), a.buildSettings()),
	))
	a.window.Resize(fyne.NewSize(width, height))

	a.buildTray()

	a.window.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyR, Modifier: fyne.KeyModifierShortcutDefault},
		func(fyne.Shortcut) { a.send(app.ToggleRecord{}) })
	a.window.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyReturn, Modifier: fyne.KeyModifierShortcutDefault},
		func(fyne.Shortcut) { a.send(app.Ask{}) })
}

func (a *App) buildTray() {
	desk, ok := a.fyneApp.(desktop.App)
	if !ok {
		return
	}
	a.trayRecord = fyne.NewMenuItem("Start recording", func() { a.send(app.ToggleRecord{}) })
	a.trayMenu = fyne.NewMenu("voxchat",
		a.trayRecord,
		fyne.NewMenuItem("Copy last answer", func() { a.send(app.CopyResult{}) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Show window", func() {
			a.window.Show()
			a.window.RequestFocus()
		}),
	)
	desk.SetSystemTrayMenu(a.trayMenu)
	desk.SetSystemTrayIcon(theme.MediaRecordIcon())
}

func (a *App) buildSettings() fyne.CanvasObject {
	a.provider = widget.NewSelect(nil, func(name string) { a.send(app.SelectProvider{Name: name}) })
	a.key = widget.NewPasswordEntry()
	a.url = widget.NewEntry()
	a.model = widget.NewEntry()
	apply := widget.NewButton("Apply", func() {
		a.send(app.EditProvider{Key: a.key.Text, URL: a.url.Text, Model: a.model.Text})
	})

	a.context = widget.NewMultiLineEntry()
	a.context.SetPlaceHolder("System context sent before every prompt")
	a.context.OnChanged = func(s string) { a.send(app.SetContext{Text: s}) }

	a.theme = widget.NewSelect(nil, func(name string) { a.send(app.SelectTheme{Name: name}) })
	smaller := widget.NewButtonWithIcon("", theme.ZoomOutIcon(), func() { a.send(app.FontSize{Delta: -1}) })
	larger := widget.NewButtonWithIcon("", theme.ZoomInIcon(), func() { a.send(app.FontSize{Delta: 1}) })
	save := widget.NewButtonWithIcon("Save settings", theme.DocumentSaveIcon(), func() { a.send(app.SaveSettings{}) })

	form := widget.NewForm(
		widget.NewFormItem("Microphone", a.device),
		widget.NewFormItem("Chat provider", a.provider),
		widget.NewFormItem("API key", a.key),
		widget.NewFormItem("URL", a.url),
		widget.NewFormItem("Model", a.model),
		widget.NewFormItem("", apply),
		widget.NewFormItem("Context", a.context),
		widget.NewFormItem("Theme", a.theme),
		widget.NewFormItem("Font size", container.NewHBox(smaller, larger)),
	)
	return container.NewVBox(form, save)
}

func (a *App) Settings(v app.View) {
	fyne.Do(func() {
		a.syncing = true
		defer func() { a.syncing = false }()

		a.device.Options = v.Devices
		if v.Device != a.device.Selected {
			a.device.SetSelected(v.Device)
		}
		a.device.Refresh()
		a.language.Options = v.Languages
		if v.Language != a.language.Selected {
			a.language.SetSelected(v.Language)
		}
		a.language.Refresh()
		a.provider.Options = v.Providers
		if v.Provider != a.provider.Selected {
			a.provider.SetSelected(v.Provider)
		}
		a.provider.Refresh()
		a.theme.Options = v.Themes
		if v.Theme != a.theme.Selected {
			a.theme.SetSelected(v.Theme)
		}
		a.theme.Refresh()
		a.play.SetChecked(v.Play)

		if v.Provider != a.view.Provider || v.Key != a.view.Key || v.URL != a.view.URL || v.Model != a.view.Model {
			a.key.SetText(v.Key)
			a.url.SetText(v.URL)
			a.model.SetText(v.Model)
		}
		if v.Context != a.context.Text {
			a.context.SetText(v.Context)
		}
		if v.Theme != a.view.Theme || v.FontSize != a.view.FontSize {
			a.fyneApp.Settings().SetTheme(&appTheme{light: v.Theme == "light", textSize: v.FontSize})
		}
		a.view = v
	})
}

func (a *App) Recording(on bool) {
	a.meter.SetRecording(on)
	fyne.Do(func() {
		if on {
			a.record.SetText("Stop recording")
			a.record.SetIcon(theme.MediaStopIcon())
			a.record.Importance = widget.DangerImportance
		} else {
			a.record.SetText("Record")
			a.record.SetIcon(theme.MediaRecordIcon())
			a.record.Importance = widget.MediumImportance
		}
		a.record.Refresh()

		if a.trayRecord != nil {
			a.trayRecord.Label = "Start recording"
			if on {
				a.trayRecord.Label = "Stop recording"
			}
			a.trayMenu.Refresh()
		}
	})
}

func (a *App) Level(db float64, bars int) {
	a.meter.SetLevel(bars)
	fyne.Do(func() { a.levelDB.SetText(fmt.Sprintf("%.0f dB", max(db, -99))) })
}

func (a *App) Query(text string) {
	fyne.Do(func() {
		a.syncing = true
		a.query.SetText(text)
		a.syncing = false
	})
}

func (a *App) Result(md string) {
	fyne.Do(func() { a.result.ParseMarkdown(md) })
}

func (a *App) Status(text string) {
	fyne.Do(func() { a.status.SetText(text) })
}

func (a *App) Error(msg string) {
	fyne.Do(func() {
		a.errText.SetText(msg)
		if msg == "" {
			a.errBox.Hide()
		} else {
			a.errBox.Show()
		}
	})
}
