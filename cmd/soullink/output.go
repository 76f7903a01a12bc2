package main

import (
	"fmt"
	"os"
)

// ANSI codes for CLI feedback. Human-facing status lines go to stderr
// so stdout stays clean for piped JSON.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMark writes a one-line result with a leading marker glyph.
func printMark(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) {
	printMark(colorGreen, "✓", format, args...)
}

func printError(format string, args ...any) {
	printMark(colorRed, "✗", format, args...)
}

func printWarning(format string, args ...any) {
	printMark(colorYellow, "⚠", format, args...)
}

// printStatus renders one labeled line of `soullink status` output.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
