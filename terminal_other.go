//go:build !unix

package main

import (
	"os"

	"golang.org/x/term"
)

// Returns rows, columns and, where known, the pixel size of the terminal
func GetTerminalSize() (uint, uint, uint, uint, error) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	return uint(rows), uint(cols), 0, 0, err
}
