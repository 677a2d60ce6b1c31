// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrades_test

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	"github.com/juju/version/v2"

	"github.com/juju/seriesup/backups"
	"github.com/juju/seriesup/config"
	"github.com/juju/seriesup/packaging"
	"github.com/juju/seriesup/state"
	"github.com/juju/seriesup/upgrades"
)

// stubManager fakes the package tooling. HostRelease reports host until
// UpgradeRelease has been called, then afterUpgrade, so tests can model
// both a successful release hop and a tool that lied about it.
type stubManager struct {
	*testing.Stub

	host         version.Number
	afterUpgrade version.Number
	upgraded     bool
}

func (m *stubManager) UpdateIndex() error {
	m.AddCall("UpdateIndex")
	return m.NextErr()
}

func (m *stubManager) UpgradePackages() error {
	m.AddCall("UpgradePackages")
	return m.NextErr()
}

func (m *stubManager) Autoremove() error {
	m.AddCall("Autoremove")
	return m.NextErr()
}

func (m *stubManager) Purge(packages []string) error {
	m.AddCall("Purge", packages)
	return m.NextErr()
}

func (m *stubManager) UpgradeRelease(target string) error {
	m.AddCall("UpgradeRelease", target)
	if err := m.NextErr(); err != nil {
		return err
	}
	m.upgraded = true
	return nil
}

func (m *stubManager) HostRelease() (version.Number, error) {
	m.AddCall("HostRelease")
	if err := m.NextErr(); err != nil {
		return version.Zero, err
	}
	if m.upgraded {
		return m.afterUpgrade, nil
	}
	return m.host, nil
}

var _ packaging.Manager = (*stubManager)(nil)

type stubCreator struct {
	*testing.Stub

	filename string
}

func (b *stubCreator) Create(database string) (string, error) {
	b.AddCall("Create", database)
	return b.filename, b.NextErr()
}

var _ backups.Creator = (*stubCreator)(nil)

// memStore is the in-memory Store substitute for dispatcher tests.
type memStore struct {
	st      state.State
	written bool

	readErr  error
	writeErr error
}

func (s *memStore) Read() (state.State, error) {
	if s.readErr != nil {
		return "", s.readErr
	}
	if !s.written {
		return state.Initial, nil
	}
	return s.st, nil
}

func (s *memStore) Write(st state.State) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.st = st
	s.written = true
	return nil
}

func (s *memStore) Remove() error {
	s.st = ""
	s.written = false
	return nil
}

func (s *memStore) set(st state.State) {
	s.st = st
	s.written = true
}

var _ state.Store = (*memStore)(nil)

type stubRegistrar struct {
	*testing.Stub
}

func (r *stubRegistrar) Register() error {
	r.AddCall("Register")
	return r.NextErr()
}

func (r *stubRegistrar) Deregister() error {
	r.AddCall("Deregister")
	return r.NextErr()
}

type stubReboot struct {
	*testing.Stub
}

func (r *stubReboot) Schedule(delay time.Duration) error {
	r.AddCall("Schedule", delay)
	return r.NextErr()
}

var errBoom = errors.New("boom")

func newContext(stub *testing.Stub, host version.Number, cfg config.Config) (upgrades.Context, *stubManager, *stubCreator) {
	manager := &stubManager{Stub: stub, host: host, afterUpgrade: host}
	creator := &stubCreator{Stub: stub, filename: "/var/backups/seriesup/db.sql.gz"}
	return upgrades.NewContext(manager, creator, cfg), manager, creator
}
