package app

// Action is a user intent delivered from a front-end.
type Action interface{ isAction() }

// ToggleRecord starts recording on the selected device, or stops it and
// transcribes what was captured.
type ToggleRecord struct{}

// SelectDevice switches capture to the named device. Unknown names select
// the system default.
type SelectDevice struct{ Name string }

// SetQuery replaces the prompt text (edited by the user).
type SetQuery struct{ Text string }

// Ask sends the current query to the active provider.
type Ask struct{}

// StopChat abandons the response being streamed.
type StopChat struct{}

// SetPlay turns speaking of responses on or off.
type SetPlay struct{ On bool }

type SelectLanguage struct{ Code string }
type SelectProvider struct{ Name string }
type SelectTheme struct{ Name string }

// SetContext replaces the system context sent before each prompt.
type SetContext struct{ Text string }

// EditProvider updates the active provider's credentials and model.
type EditProvider struct{ Key, URL, Model string }

// FontSize changes the font size by Delta points, within 8..32.
type FontSize struct{ Delta float32 }

type SaveSettings struct{}
type CopyResult struct{}

// CopyCode copies the first fenced code block of the result.
type CopyCode struct{}

type DismissError struct{}

func (ToggleRecord) isAction()   {}
func (SelectDevice) isAction()   {}
func (SetQuery) isAction()       {}
func (Ask) isAction()            {}
func (StopChat) isAction()       {}
func (SetPlay) isAction()        {}
func (SelectLanguage) isAction() {}
func (SelectProvider) isAction() {}
func (SelectTheme) isAction()    {}
func (SetContext) isAction()     {}
func (EditProvider) isAction()   {}
func (FontSize) isAction()       {}
func (SaveSettings) isAction()   {}
func (CopyResult) isAction()     {}
func (CopyCode) isAction()       {}
func (DismissError) isAction()   {}
