// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd registers the one-shot boot-time unit that re-invokes
// seriesup after each reboot of the upgrade path. The registration is a
// disposable resource: registered before every reboot, idempotently
// overwritten if one already exists, and removed at the terminal state.
package systemd

import (
	"io"
	"os"
	"path"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("seriesup.service.systemd")

const (
	// EtcSystemdDir is where the resumption unit file is written.
	EtcSystemdDir = "/etc/systemd/system"

	// UnitName identifies the resumption unit.
	UnitName = "seriesup-resume.service"
)

// DBusAPI exposes the subset of the systemd dbus connection the
// registrar needs, so tests can substitute a stub.
type DBusAPI interface {
	LinkUnitFiles(files []string, runtime, force bool) ([]dbus.LinkUnitFileChange, error)
	EnableUnitFiles(files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFiles(files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	Reload() error
	Close()
}

// DBusAPIFactory creates a connection to systemd.
type DBusAPIFactory = func() (DBusAPI, error)

// NewDBusAPI is the production factory.
var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

// IsRunning returns whether systemd is the local init system. When it
// is not (a chroot, a test environment), the registrar only manages the
// unit file on disk.
var IsRunning = util.IsRunningSystemd

// FileSystemOps is the file surface the registrar touches.
type FileSystemOps interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
	Exists(name string) (bool, error)
}

type fileSystemOps struct{}

func (fileSystemOps) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (fileSystemOps) Remove(name string) error {
	return os.Remove(name)
}

func (fileSystemOps) Exists(name string) (bool, error) {
	_, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// Registrar installs and removes the resumption unit.
type Registrar struct {
	unitName  string
	dirName   string
	execStart string

	fileOps FileSystemOps
	newDBus DBusAPIFactory
}

// NewRegistrar returns a Registrar whose unit runs execStart once after
// the next boot.
func NewRegistrar(execStart string) *Registrar {
	return &Registrar{
		unitName:  UnitName,
		dirName:   EtcSystemdDir,
		execStart: execStart,
		fileOps:   fileSystemOps{},
		newDBus:   NewDBusAPI,
	}
}

func (r *Registrar) unitPath() string {
	return path.Join(r.dirName, r.unitName)
}

func (r *Registrar) serialize() ([]byte, error) {
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "seriesup release upgrade resumption"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", r.execStart),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	}
	data, err := io.ReadAll(unit.Serialize(opts))
	return data, errors.Trace(err)
}

// Register writes the unit file and enables it, overwriting any
// previous registration. At most one registration exists at a time
// because the unit name is fixed.
func (r *Registrar) Register() error {
	data, err := r.serialize()
	if err != nil {
		return errors.Trace(err)
	}
	filename := r.unitPath()
	if err := r.fileOps.WriteFile(filename, data, 0644); err != nil {
		return errors.Annotatef(err, "writing unit file %q", filename)
	}

	if !IsRunning() {
		logger.Warningf("systemd not managing this host, wrote %q only", filename)
		return nil
	}

	conn, err := r.newDBus()
	if err != nil {
		return errors.Annotate(err, "connecting to systemd")
	}
	defer conn.Close()

	const runtime, force = false, true
	if _, err := conn.LinkUnitFiles([]string{filename}, runtime, force); err != nil {
		return errors.Annotate(err, "dbus link request failed")
	}
	if err := conn.Reload(); err != nil {
		return errors.Annotate(err, "dbus post-link daemon reload request failed")
	}
	if _, _, err := conn.EnableUnitFiles([]string{filename}, runtime, force); err != nil {
		return errors.Annotate(err, "dbus enable request failed")
	}
	logger.Infof("registered resumption unit %q", r.unitName)
	return nil
}

// Deregister disables and removes the unit. A missing registration is
// not an error, so terminal cleanup can run repeatedly.
func (r *Registrar) Deregister() error {
	registered, err := r.Registered()
	if err != nil {
		return errors.Trace(err)
	}
	if !registered {
		logger.Debugf("resumption unit %q not registered", r.unitName)
		return nil
	}

	if IsRunning() {
		conn, err := r.newDBus()
		if err != nil {
			return errors.Annotate(err, "connecting to systemd")
		}
		defer conn.Close()

		if _, err := conn.DisableUnitFiles([]string{r.unitName}, false); err != nil {
			return errors.Annotate(err, "dbus disable request failed")
		}
		if err := conn.Reload(); err != nil {
			return errors.Annotate(err, "dbus post-disable daemon reload request failed")
		}
	}

	if err := r.fileOps.Remove(r.unitPath()); err != nil && !os.IsNotExist(err) {
		return errors.Annotatef(err, "removing unit file %q", r.unitPath())
	}
	logger.Infof("removed resumption unit %q", r.unitName)
	return nil
}

// Registered reports whether the resumption unit file is present.
func (r *Registrar) Registered() (bool, error) {
	exists, err := r.fileOps.Exists(r.unitPath())
	return exists, errors.Trace(err)
}
