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

// Package unix listens on a Unix domain socket for local API clients.
// Access is governed by the socket file's mode; the same authenticator
// as the TCP listener still applies to every request.
package unix

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSocketMode lets the owner and group connect.
const DefaultSocketMode os.FileMode = 0o660

// Listener is a Unix socket listener that removes its socket file on Close.
type Listener struct {
	net.Listener
	path string
	once sync.Once
}

// Listen creates the socket at path with the given mode. A stale socket
// left by a previous run is removed; any other file at path is an error.
func Listen(path string, mode os.FileMode) (*Listener, error) {
	if path == "" {
		return nil, errors.New("unix: socket path is required")
	}
	if mode == 0 {
		mode = DefaultSocketMode
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("unix: create socket directory: %w", err)
	}
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("unix: %s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("unix: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("unix: listen: %w", err)
	}
	// Close unlinks the file itself.
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	if err := os.Chmod(path, mode); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("unix: set socket mode: %w", err)
	}
	return &Listener{Listener: ln, path: path}, nil
}

// Path returns the socket file path.
func (l *Listener) Path() string {
	return l.path
}

// Close stops accepting connections and removes the socket file.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.Listener.Close()
		if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
			err = errors.Join(err, rerr)
		}
	})
	return err
}
