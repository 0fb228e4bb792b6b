package main

import (
	"bytes"
	"io"
)

// Action is a user command for the playback loop
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionTogglePause
	ActionPrevious
	ActionNext
)

func (a Action) String() string {
	switch a {
	case ActionQuit:
		return "quit"
	case ActionTogglePause:
		return "pause"
	case ActionPrevious:
		return "previous"
	case ActionNext:
		return "next"
	default:
		return "none"
	}
}

const ctrlC = 0x03

var (
	keyUp      = []byte("\x1b[A")
	keyDown    = []byte("\x1b[B")
	keyUpApp   = []byte("\x1bOA")
	keyDownApp = []byte("\x1bOB")
)

// parseKeys turns raw terminal input into actions. Unknown bytes and
// escape sequences are skipped.
func parseKeys(buf []byte) []Action {
	var actions []Action
	for len(buf) > 0 {
		switch {
		case bytes.HasPrefix(buf, keyUp), bytes.HasPrefix(buf, keyUpApp):
			actions = append(actions, ActionPrevious)
			buf = buf[len(keyUp):]
			continue
		case bytes.HasPrefix(buf, keyDown), bytes.HasPrefix(buf, keyDownApp):
			actions = append(actions, ActionNext)
			buf = buf[len(keyDown):]
			continue
		case buf[0] == 0x1b:
			buf = skipEscape(buf)
			continue
		}

		switch buf[0] {
		case 'q', 'Q', ctrlC:
			actions = append(actions, ActionQuit)
		case ' ':
			actions = append(actions, ActionTogglePause)
		case 'k', 'K':
			actions = append(actions, ActionPrevious)
		case 'j', 'J':
			actions = append(actions, ActionNext)
		}
		buf = buf[1:]
	}
	return actions
}

// Skips one escape sequence, or a lone ESC
func skipEscape(buf []byte) []byte {
	if len(buf) < 2 || (buf[1] != '[' && buf[1] != 'O') {
		return buf[1:]
	}
	// CSI and SS3 sequences end with a byte in 0x40..0x7e
	for i := 2; i < len(buf); i++ {
		if buf[i] >= 0x40 && buf[i] <= 0x7e {
			return buf[i+1:]
		}
	}
	return nil
}

// readActions reads r until it fails and sends the parsed actions on out.
// It is meant for a goroutine that lives as long as the process, since a
// blocked terminal read cannot be interrupted.
func readActions(r io.Reader, out chan<- Action) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, a := range parseKeys(buf[:n]) {
			out <- a
		}
		if err != nil {
			logger.Debug("input", "Input closed: %v", err)
			return
		}
	}
}

// Returns the first pending action without blocking
func pollAction(in <-chan Action) Action {
	select {
	case a := <-in:
		return a
	default:
		return ActionNone
	}
}
