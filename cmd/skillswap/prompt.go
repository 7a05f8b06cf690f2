package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readLine prompts for a value and returns it trimmed. An empty answer is
// returned as is; callers decide whether it is allowed.
func (a *app) readLine(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readRequired repeats the prompt until the answer is not empty.
func (a *app) readRequired(label string) (string, error) {
	for {
		v, err := a.readLine(label)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		fmt.Fprintf(a.out, "%s cannot be empty.\n", label)
	}
}

// readSecret reads a password with masked input when stdin is a terminal,
// falling back to a plain line otherwise.
func (a *app) readSecret(label string) (string, error) {
	f, ok := a.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.readRequired(label)
	}
	for {
		fmt.Fprintf(a.out, "%s: ", label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", err
		}
		if v := strings.TrimSpace(string(b)); v != "" {
			return v, nil
		}
		fmt.Fprintf(a.out, "%s cannot be empty.\n", label)
	}
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func (a *app) confirm(question string) (bool, error) {
	v, err := a.readLine(question + " [y/N]")
	if err != nil {
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}
