package prompter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt would block on a non-terminal
var ErrNotInteractive = errors.New("stdin is not a terminal")

var (
	in  io.Reader = os.Stdin
	out io.Writer = os.Stdout

	reader *bufio.Reader
)

// SetIO replaces the prompt streams; nil restores stdin/stdout
func SetIO(r io.Reader, w io.Writer) {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	in, out = r, w
	reader = nil
}

func lineReader() *bufio.Reader {
	if reader == nil {
		reader = bufio.NewReader(in)
	}
	return reader
}

// Interactive reports whether prompts can reach a user
func Interactive() bool {
	f, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

// PromptString prompts user for a string input
func PromptString(label string) (string, error) {
	fmt.Fprint(out, label)
	input, err := lineReader().ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptConfirm prompts user for yes/no confirmation
func PromptConfirm(label string) (bool, error) {
	if !Interactive() {
		return false, ErrNotInteractive
	}
	response, err := PromptString(label + " (y/n) ")
	if err != nil {
		return false, err
	}
	response = strings.ToLower(response)
	return response == "y" || response == "yes", nil
}

// PromptMultilineString reads lines until an empty one or maxLines
func PromptMultilineString(label string, maxLines int) (string, error) {
	fmt.Fprintf(out, "%s (empty line to finish):\n", label)

	var lines []string
	for i := 0; i < maxLines; i++ {
		line, err := lineReader().ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			lines = append(lines, line)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if line == "" {
			break
		}
	}

	return strings.Join(lines, "\n"), nil
}
