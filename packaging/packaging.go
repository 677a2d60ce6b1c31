// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packaging wraps the host package tooling behind a narrow
// capability interface so the upgrade stages and their tests never
// depend on the real tools being present.
package packaging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
	"github.com/juju/utils/v4"
	"github.com/juju/utils/v4/exec"
	"github.com/juju/version/v2"
)

var logger = loggo.GetLogger("seriesup.packaging")

// Manager exposes the package operations an upgrade run needs.
type Manager interface {
	// UpdateIndex refreshes the package index. Transient failures are
	// retried a bounded number of times before being surfaced.
	UpdateIndex() error

	// UpgradePackages brings all installed packages to the newest
	// version available for the running release.
	UpgradePackages() error

	// Autoremove removes packages that are no longer required.
	Autoremove() error

	// Purge removes the named packages together with their
	// configuration. Packages that are not installed are skipped with
	// a warning rather than failing the stage.
	Purge(packages []string) error

	// UpgradeRelease runs the release upgrade tool. The tool only ever
	// moves to the next release, which is exactly the single-hop
	// semantics of the stage table; target is recorded for logging and
	// confirmed afterwards through HostRelease.
	UpgradeRelease(target string) error

	// HostRelease reports the release version the host is running.
	HostRelease() (version.Number, error)
}

const (
	// aptget carries the options every apt-get call wants here:
	// --force-confold is passed to dpkg to never overwrite config files,
	// --force-unsafe-io makes dpkg less sync-happy,
	// --assume-yes to never prompt for confirmation.
	aptget = "apt-get" +
		" --option=Dpkg::Options::=--force-confold" +
		" --option=Dpkg::Options::=--force-unsafe-io" +
		" --assume-yes --quiet"

	dpkgquery = "dpkg-query"

	releaseUpgrader = "do-release-upgrade --frontend DistUpgradeViewNonInteractive"
)

const updateAttempts = 3

var updateDelay = 10 * time.Second

// runCommands is patched in tests.
var runCommands = exec.RunCommands

// aptManager implements Manager by shelling out to the apt tooling.
type aptManager struct {
	clock clock.Clock

	// osReleaseFile is separate from the rest of the shell-outs so the
	// release probe can point at a fixture file in tests.
	osReleaseFile string
}

// NewAptManager returns a Manager for an apt-based host.
func NewAptManager(clk clock.Clock) Manager {
	return &aptManager{
		clock:         clk,
		osReleaseFile: "/etc/os-release",
	}
}

// run executes commands through the shell with a non-interactive
// package environment and returns an error carrying the command's
// stderr when it exits non-zero.
func (m *aptManager) run(what, commands string) error {
	logger.Debugf("running %s: %s", what, commands)
	result, err := runCommands(exec.RunParams{
		Commands:    commands,
		Environment: append(os.Environ(), "DEBIAN_FRONTEND=noninteractive"),
	})
	if err != nil {
		return errors.Annotatef(err, "running %s", what)
	}
	if result.Code != 0 {
		return errors.Errorf("%s failed (exit %d): %s",
			what, result.Code, strings.TrimSpace(string(result.Stderr)))
	}
	return nil
}

// UpdateIndex implements Manager. Index refreshes are idempotent and
// the usual victim of transient network failure, so this is the one
// operation that retries before giving up.
func (m *aptManager) UpdateIndex() error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return m.run("package index update", aptget+" update")
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("package index update attempt %d failed: %v", attempt, err)
		},
		Attempts: updateAttempts,
		Delay:    updateDelay,
		Clock:    m.clock,
	})
	return errors.Trace(err)
}

// UpgradePackages implements Manager. dist-upgrade rather than upgrade:
// release preparation must be allowed to change the installed set.
func (m *aptManager) UpgradePackages() error {
	return errors.Trace(m.run("package upgrade", aptget+" dist-upgrade"))
}

// Autoremove implements Manager.
func (m *aptManager) Autoremove() error {
	return errors.Trace(m.run("package autoremove", aptget+" autoremove"))
}

// Purge implements Manager.
func (m *aptManager) Purge(packages []string) error {
	for _, pkg := range packages {
		installed, err := m.isInstalled(pkg)
		if err != nil {
			return errors.Trace(err)
		}
		if !installed {
			logger.Warningf("package %q not installed, skipping purge", pkg)
			continue
		}
		if err := m.run(fmt.Sprintf("purge of %q", pkg), aptget+" purge "+utils.ShQuote(pkg)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m *aptManager) isInstalled(pkg string) (bool, error) {
	result, err := runCommands(exec.RunParams{
		Commands: dpkgquery + " -s " + utils.ShQuote(pkg),
	})
	if err != nil {
		return false, errors.Annotatef(err, "querying package %q", pkg)
	}
	return result.Code == 0, nil
}

// UpgradeRelease implements Manager.
func (m *aptManager) UpgradeRelease(target string) error {
	logger.Infof("starting release upgrade towards %q", target)
	return errors.Trace(m.run("release upgrade", releaseUpgrader))
}

// HostRelease implements Manager by reading VERSION_ID from os-release.
func (m *aptManager) HostRelease() (version.Number, error) {
	data, err := os.ReadFile(m.osReleaseFile)
	if err != nil {
		return version.Zero, errors.Annotate(err, "reading os-release")
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VERSION_ID=") {
			continue
		}
		value := strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"`)
		num, err := version.Parse(value)
		if err != nil {
			return version.Zero, errors.Annotatef(err, "parsing VERSION_ID %q", value)
		}
		return num, nil
	}
	return version.Zero, errors.NotFoundf("VERSION_ID in %q", m.osReleaseFile)
}
