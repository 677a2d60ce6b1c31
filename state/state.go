// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package state persists the single token recording which upgrade
// stage runs next. The token is deliberately opaque here: validating it
// against the stage table is the dispatcher's job, so an unrecognised
// value survives a read/write round trip intact and can be reported
// verbatim.
package state

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// State is the persisted upgrade progress token. It names the next
// stage to execute, not the last stage completed.
type State string

const (
	// Initial is the implicit state of a host that has never run an
	// upgrade: a missing state file reads as Initial.
	Initial State = "initial"

	// Done is the terminal state. Reaching it triggers cleanup and
	// removal of the state file itself.
	Done State = "done"
)

// Store reads and writes the persisted upgrade state. Any failure of
// the underlying storage is fatal to an upgrade run; the upgrade must
// not proceed on a state it cannot trust.
type Store interface {
	// Read returns the persisted state, or Initial if none has ever
	// been written.
	Read() (State, error)

	// Write persists the state atomically. A crash mid-write must
	// leave either the old state or the new one, never a torn file.
	Write(State) error

	// Remove deletes the persisted state at the end of the upgrade.
	// Removing state that was never written is not an error.
	Remove() error
}

// FileStore is a Store backed by a single-line file.
type FileStore struct {
	path string
}

// NewFileStore returns a Store persisting to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read implements Store.
func (s *FileStore) Read() (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Initial, nil
	}
	if err != nil {
		return "", errors.Annotatef(err, "reading upgrade state from %q", s.path)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return Initial, nil
	}
	return State(token), nil
}

// Write implements Store. The state is written to a temporary file in
// the same directory and renamed over the old one.
func (s *FileStore) Write(st State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Trace(err)
	}
	err := utils.AtomicWriteFile(s.path, []byte(string(st)+"\n"), 0644)
	return errors.Annotatef(err, "writing upgrade state %q", st)
}

// Remove implements Store.
func (s *FileStore) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	return nil
}
