// Package clipboard copies chat results to the system clipboard.
package clipboard

import (
	"strings"

	cb "github.com/atotto/clipboard"
)

const fence = "```"

// System is the desktop clipboard.
type System struct{}

func (System) Copy(text string) error {
	return cb.WriteAll(text)
}

func (System) Read() (string, error) {
	return cb.ReadAll()
}

// CodeBlock returns the text between the first pair of ``` fences, with
// the opening fence's language tag dropped. ok is false when there is no
// complete pair.
func CodeBlock(s string) (string, bool) {
	start := strings.Index(s, fence)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	code := rest[:end]
	if nl := strings.IndexByte(code, '\n'); nl >= 0 && !strings.ContainsAny(code[:nl], " \t") {
		code = code[nl+1:]
	}
	return code, true
}
