// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/testing"
)

type StubDbusAPI struct {
	*testing.Stub
}

func (fda *StubDbusAPI) LinkUnitFiles(files []string, runtime, force bool) ([]dbus.LinkUnitFileChange, error) {
	fda.Stub.AddCall("LinkUnitFiles", files, runtime, force)

	return nil, fda.NextErr()
}

func (fda *StubDbusAPI) EnableUnitFiles(files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	fda.Stub.AddCall("EnableUnitFiles", files, runtime, force)

	return true, nil, fda.NextErr()
}

func (fda *StubDbusAPI) DisableUnitFiles(files []string, runtime bool) ([]dbus.DisableUnitFileChange, error) {
	fda.Stub.AddCall("DisableUnitFiles", files, runtime)

	return nil, fda.NextErr()
}

func (fda *StubDbusAPI) Reload() error {
	fda.Stub.AddCall("Reload")

	return fda.NextErr()
}

func (fda *StubDbusAPI) Close() {
	fda.Stub.AddCall("Close")

	fda.Stub.NextErr() // We don't return the error (just pop it off).
}
