//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// Returns rows, columns and, where known, the pixel size of the terminal
func GetTerminalSize() (uint, uint, uint, uint, error) {
	// Unix supports a syscall to get the terminal size in both characters and pixels (some terminals may not support pixels)
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return uint(ws.Row), uint(ws.Col), uint(ws.Xpixel), uint(ws.Ypixel), nil
}
