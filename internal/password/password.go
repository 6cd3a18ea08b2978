// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package password obtains keystore passwords for the command line tools
// without echoing them or putting them in argv.
package password

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvVar is consulted when no password file is given.
const EnvVar = "KEYMASTER_PASSWORD"

var (
	// ErrNoPassword is returned when no source produced a password.
	ErrNoPassword = errors.New("password: no password available")

	// ErrMismatch is returned when a confirmation prompt does not match.
	ErrMismatch = errors.New("password: passwords do not match")
)

// Terminal reads a line without echo.
type Terminal interface {
	IsTerminal() bool
	ReadPassword(prompt string) (string, error)
}

// Reader resolves a password from, in order: a file, the environment and
// an interactive prompt.
type Reader struct {
	File     string
	Getenv   func(string) string
	Terminal Terminal
}

// New returns a Reader over the real environment and stdin.
func New(file string) *Reader {
	return &Reader{
		File:     file,
		Getenv:   os.Getenv,
		Terminal: stdinTerminal{out: os.Stderr},
	}
}

// Read returns the password. With confirm set, an interactive prompt asks
// twice and the answers must match.
func (r *Reader) Read(confirm bool) (string, error) {
	if r.File != "" {
		return readFile(r.File)
	}
	if r.Getenv != nil {
		if pw := r.Getenv(EnvVar); pw != "" {
			return pw, nil
		}
	}
	if r.Terminal == nil || !r.Terminal.IsTerminal() {
		return "", ErrNoPassword
	}

	pw, err := r.Terminal.ReadPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("password: prompt: %w", err)
	}
	if pw == "" {
		return "", ErrNoPassword
	}
	if confirm {
		again, err := r.Terminal.ReadPassword("Confirm password: ")
		if err != nil {
			return "", fmt.Errorf("password: prompt: %w", err)
		}
		if again != pw {
			return "", ErrMismatch
		}
	}
	return pw, nil
}

// readFile returns the first line of path.
func readFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return "", fmt.Errorf("password: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("password: read %s: %w", path, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrNoPassword
	}
	return line, nil
}

type stdinTerminal struct {
	out io.Writer
}

func (stdinTerminal) IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) // #nosec G115 -- fd fits in int
}

func (s stdinTerminal) ReadPassword(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd())) // #nosec G115 -- fd fits in int
	fmt.Fprintln(s.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
