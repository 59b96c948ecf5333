// Package util provides utility functions for the tsbundle CLI.
package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompts read from Stdin and write to Stdout.
var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
)

var (
	reader    *bufio.Reader
	readerSrc io.Reader
)

func stdinReader() *bufio.Reader {
	if reader == nil || readerSrc != Stdin {
		reader = bufio.NewReader(Stdin)
		readerSrc = Stdin
	}
	return reader
}

// ReadLine reads a line from stdin
func ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(Stdout, prompt)
	line, err := stdinReader().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks for a yes/no confirmation
func Confirm(prompt string, defaultYes bool) (bool, error) {
	suffix := " [y/N]: "
	if defaultYes {
		suffix = " [Y/n]: "
	}

	answer, err := ReadLine(prompt + suffix)
	if err != nil {
		return false, err
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return defaultYes, nil
	}

	return answer == "y" || answer == "yes", nil
}

// Choose asks for one of choices, returning def on an empty answer. It asks
// again until the answer is valid.
func Choose(prompt string, choices []string, def string) (string, error) {
	for {
		answer, err := ReadLine(fmt.Sprintf("%s (%s) [%s]: ", prompt, strings.Join(choices, "/"), def))
		if err != nil {
			return "", err
		}
		if answer == "" {
			return def, nil
		}
		for _, c := range choices {
			if strings.EqualFold(answer, c) {
				return c, nil
			}
		}
		_, _ = fmt.Fprintf(Stdout, "Please answer one of: %s\n", strings.Join(choices, ", "))
	}
}

// TruncateString truncates a string to the specified length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// FirstLine returns the first non-empty line of s.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// IsInteractive returns true if stdin is a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsTerminal returns true if f is a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
