// Package cli provides the terminal formatting helpers of the sfctest
// command: status colors and column-aligned tables.
package cli

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorEnabled reports whether status words are colored. It is off when
// NO_COLOR is set (no-color.org) or stdout is not a terminal, so CI logs and
// redirected reports stay plain.
var ColorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

func paint(code, s string) string {
	if !ColorEnabled {
		return s
	}
	return code + s + ansiReset
}

// Green marks passed results.
func Green(s string) string { return paint(ansiGreen, s) }

// Yellow marks warnings and skipped scenarios.
func Yellow(s string) string { return paint(ansiYellow, s) }

// Red marks failures and errors.
func Red(s string) string { return paint(ansiRed, s) }

// Dim marks secondary detail lines.
func Dim(s string) string { return paint(ansiDim, s) }

// DotPad pads name with a space and dots to width, for aligned status
// columns: DotPad("basic", 12) is "basic ......". Names that leave no room
// for a dot are returned unchanged.
func DotPad(name string, width int) string {
	n := width - len(name) - 1
	if n <= 0 {
		return name
	}
	return name + " " + strings.Repeat(".", n)
}
