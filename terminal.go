package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/term"
)

// Smallest terminal the home screen considers usable
const (
	minTermCols = 80
	minTermRows = 20
)

type TermData struct {
	pixWidth  uint // Width of terminal in pixels
	pixHeight uint // Height of terminal in pxels
	cols      uint // Number of columns of terminal
	rows      uint // Number of rows of terminal
	defined   bool // If the terminal size has been measured
	ratio     uint // How many characters wide a pixel is
}

// updateSize measures the terminal. ratio overrides the measured character
// aspect when non-zero.
func (t *TermData) updateSize(ratio uint) (changed bool, err error) {
	rows, cols, width, height, err := GetTerminalSize()
	if err != nil {
		return false, tagErr("terminal", err)
	}
	changed = !t.defined || cols != t.cols || rows != t.rows
	t.setSize(rows, cols, width, height, ratio)
	return changed, nil
}

func (t *TermData) setSize(rows, cols, width, height, ratio uint) {
	t.cols, t.rows = cols, rows
	t.pixWidth, t.pixHeight = width, height

	if ratio != 0 {
		t.ratio = ratio
	} else if t.pixWidth != 0 && t.pixHeight != 0 && t.rows != 0 && t.cols != 0 {
		characterHeight := float64(t.pixHeight) / float64(t.rows)
		characterWidth := float64(t.pixWidth) / float64(t.cols)
		t.ratio = max(1, uint(math.Round(characterHeight/characterWidth)))
	} else {
		t.ratio = 2 // good default value
	}

	t.defined = true
}

func (t *TermData) tooSmall() bool {
	return t.cols < minTermCols || t.rows < minTermRows
}

const (
	ENTER_ALT_BUFFER_TERM = "\033[?1049h"
	EXIT_ALT_BUFFER_TERM  = "\033[?1049l"
	CLEAR_SCREEN_TERM     = "\033[2J"
	MOVE_HOME_TERM        = "\033[H"
	HIDE_CURSOR_TERM      = "\033[?25l"
	SHOW_CURSOR_TERM      = "\033[?25h"
)

// Moves the cursor to a 1-based row and column
func moveTo(w io.Writer, row, col int) {
	fmt.Fprintf(w, "\033[%d;%dH", row, col)
}

// enterRawMode puts stdin in raw mode when it is a terminal
func enterRawMode() (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, tagErr("terminal", err)
	}
	return func() { term.Restore(fd, state) }, nil
}
