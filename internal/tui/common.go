// Package tui implements the interactive choosers shown when run options
// are missing, using Bubble Tea.
package tui

import (
	"os"

	"golang.org/x/term"
)

// Common key binding constants.
const (
	KeyCtrlC = "ctrl+c"
	KeyEnter = "enter"
	KeyEsc   = "esc"
)

// IsTTY returns true if both stdin and stdout are connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
