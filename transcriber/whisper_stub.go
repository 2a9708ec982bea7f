//go:build !whisper

package transcriber

import "errors"

// LoadWhisper is unavailable without the whisper build tag, which links
// against libwhisper.
func LoadWhisper(string) (Engine, error) {
	return nil, errors.New("whisper support not compiled in (build with -tags whisper)")
}
