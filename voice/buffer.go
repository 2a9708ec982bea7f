package voice

import "strings"

// Buffer accumulates streamed fragments until a sentence terminator
// arrives.
type Buffer struct {
	parts []string
}

func isTerminal(fragment string) bool {
	return fragment == "." || fragment == "。"
}

// ready reports whether the buffered text is worth speaking: more than
// one fragment, at least one of which is longer than four bytes.
func (b *Buffer) ready() bool {
	if len(b.parts) <= 1 {
		return false
	}
	for _, p := range b.parts {
		if len(p) > 4 {
			return true
		}
	}
	return false
}

// Push adds a fragment. When it completes a sentence the joined text is
// returned and the buffer is cleared.
func (b *Buffer) Push(fragment string) (string, bool) {
	if isTerminal(fragment) && b.ready() {
		b.parts = append(b.parts, fragment)
		sentence := strings.Join(b.parts, " ")
		b.parts = b.parts[:0]
		return sentence, true
	}
	b.parts = append(b.parts, fragment)
	return "", false
}

func (b *Buffer) pending() int { return len(b.parts) }

func (b *Buffer) Reset() { b.parts = b.parts[:0] }
