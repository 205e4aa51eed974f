package runtimeio

import (
	"bufio"
	"os"
	"strings"

	"golang.org/x/term"
)

// IsInteractive reports whether stdin is attached to a terminal. The REPL
// uses it to decide whether prompts and the banner belong in the session.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadLine reads one line from r without the trailing newline. io.EOF with
// no partial content surfaces as ("", io.EOF).
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
