package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrCancelled is returned when the picker is aborted with Ctrl+C or q.
var ErrCancelled = errors.New("device selection cancelled")

// SelectDevice runs the interactive picker on the terminal. A nil device
// with a nil error means the user chose the system default.
func SelectDevice(ctx Context, current string) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, errors.New("no capture devices found")
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	return pickDevice(devices, current, os.Stdin, os.Stdout)
}

// picker is the list state; row 0 is the system default and row i+1 is
// devices[i].
type picker struct {
	devices []DeviceInfo
	cursor  int
}

func (p *picker) rows() int { return len(p.devices) + 1 }

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select input device (↑/↓ or j/k, Enter to confirm, q to cancel):\r\n\r\n")
	for row := range p.rows() {
		name := "System default"
		tag := ""
		if row > 0 {
			name = p.devices[row-1].Name
			if IsBluetooth(name) {
				tag = " \x1b[33m[bluetooth: lower audio quality]\x1b[0m"
			}
		}
		if row == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", name, tag)
		}
	}
}

// key applies one keypress. done reports a final choice.
func (p *picker) key(in []byte) (done bool, err error) {
	switch {
	case len(in) == 1 && (in[0] == '\r' || in[0] == '\n'):
		return true, nil
	case len(in) == 1 && (in[0] == 3 || in[0] == 'q'):
		return true, ErrCancelled
	case len(in) == 1 && in[0] == 'j', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'B':
		p.cursor = min(p.cursor+1, p.rows()-1)
	case len(in) == 1 && in[0] == 'k', len(in) == 3 && in[0] == 0x1b && in[1] == '[' && in[2] == 'A':
		p.cursor = max(p.cursor-1, 0)
	}
	return false, nil
}

func (p *picker) selected() *DeviceInfo {
	if p.cursor == 0 {
		return nil
	}
	return &p.devices[p.cursor-1]
}

func pickDevice(devices []DeviceInfo, current string, in io.Reader, out io.Writer) (*DeviceInfo, error) {
	p := &picker{devices: devices, cursor: IndexOf(devices, current) + 1}
	p.render(out)

	buf := make([]byte, 3)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		done, err := p.key(buf[:n])
		if done {
			fmt.Fprint(out, "\r\n")
			if err != nil {
				return nil, err
			}
			return p.selected(), nil
		}
		fmt.Fprintf(out, "\x1b[%dA", p.rows()+2)
		p.render(out)
	}
}
