// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// seriesup walks an Ubuntu host through a chain of LTS series upgrades,
// one release hop per boot. Each invocation runs a single stage, records
// the next one, registers a boot-time unit to re-invoke itself and
// reboots the host; the final invocation cleans up after itself.
package main

import (
	"os"
	"path/filepath"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"

	"github.com/juju/seriesup/backups"
	"github.com/juju/seriesup/cmd"
	"github.com/juju/seriesup/config"
	"github.com/juju/seriesup/core/paths"
	"github.com/juju/seriesup/machinelock"
	"github.com/juju/seriesup/packaging"
	"github.com/juju/seriesup/reboot"
	"github.com/juju/seriesup/service/systemd"
	"github.com/juju/seriesup/state"
	"github.com/juju/seriesup/upgrades"
)

var logger = loggo.GetLogger("seriesup.cmd.seriesup")

// Process exit codes. Boot-time re-invocations run unattended, so the
// code is the only channel an operator's monitoring can key off.
const (
	exitNotRoot      = 3
	exitLockHeld     = 4
	exitUnknownState = 5
)

const lockName = "seriesup"

// Patched in tests.
var (
	osGeteuid    = os.Geteuid
	osExecutable = os.Executable
	acquireLock  = machinelock.Acquire
	setupLogging = configureLogging
	logFile      = paths.LogFile
)

const doc = `
seriesup upgrades the host to the configured target Ubuntu LTS series,
one release hop per reboot. Progress is recorded on disk, so running
seriesup again after a reboot or an interrupted run continues where the
previous invocation left off.

Configuration is read from ` + paths.ConfFile + ` when present.
`

type upgradeCommand struct {
	cmd.CommandBase

	// runUpgrade is a field so tests can exercise the startup sequence
	// without touching the host.
	runUpgrade func(cfg config.Config) error
}

func newUpgradeCommand() *upgradeCommand {
	return &upgradeCommand{runUpgrade: runUpgrade}
}

func (c *upgradeCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "seriesup",
		Purpose: "run the next stage of a resumable series upgrade",
		Doc:     doc,
	}
}

func (c *upgradeCommand) Run(ctx *cmd.Context) error {
	if osGeteuid() != 0 {
		ctx.Errorf("seriesup must be run as root")
		return cmd.NewRcPassthroughError(exitNotRoot)
	}
	if err := setupLogging(ctx); err != nil {
		return errors.Trace(err)
	}

	cfg, err := config.Read(paths.ConfFile)
	if err != nil {
		return errors.Trace(err)
	}

	lock, err := acquireLock(machinelock.Config{
		Name:       lockName,
		Clock:      clock.WallClock,
		ReportPath: paths.LockReportFile,
	})
	if errors.Is(err, machinelock.ErrHeld) {
		logger.Warningf("%v", err)
		return cmd.NewRcPassthroughError(exitLockHeld)
	}
	if err != nil {
		return errors.Trace(err)
	}
	defer lock.Release()

	err = c.runUpgrade(cfg)
	if errors.Is(err, upgrades.ErrUnknownState) {
		// Already logged with operator guidance by the dispatcher.
		return cmd.NewRcPassthroughError(exitUnknownState)
	}
	return errors.Trace(err)
}

// configureLogging sends every log line to the command's stdout and to a
// rotating file that survives the reboots between stages.
func configureLogging(ctx *cmd.Context) error {
	if err := loggo.ConfigureLoggers("<root>=INFO"); err != nil {
		return errors.Trace(err)
	}
	_, err := loggo.ReplaceDefaultWriter(
		loggo.NewSimpleWriter(ctx.Stdout, loggo.DefaultFormatter))
	if err != nil {
		return errors.Trace(err)
	}

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return errors.Annotatef(err, "creating log directory %q", logDir)
	}
	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 2,
		Compress:   true,
	}
	err = loggo.RegisterWriter("logfile",
		loggo.NewSimpleWriter(rotated, loggo.DefaultFormatter))
	return errors.Trace(err)
}

// runUpgrade wires the production collaborators together and runs one
// step of the state machine.
func runUpgrade(cfg config.Config) error {
	manager := packaging.NewAptManager(clock.WallClock)
	host, err := manager.HostRelease()
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("host release %s, target series %q", host, cfg.TargetSeries)

	table, err := upgrades.NewTable(host, cfg.TargetSeries)
	if err != nil {
		return errors.Trace(err)
	}

	executable, err := osExecutable()
	if err != nil {
		return errors.Annotate(err, "locating executable")
	}

	creator := backups.NewMysqlBackups(cfg.BackupDir, cfg.CompressBackup, clock.WallClock)
	dispatcher, err := upgrades.NewDispatcher(upgrades.DispatcherConfig{
		Store:       state.NewFileStore(paths.StateFile),
		Table:       table,
		Context:     upgrades.NewContext(manager, creator, cfg),
		Registrar:   systemd.NewRegistrar(executable),
		Reboot:      reboot.NewScheduler(),
		RebootDelay: cfg.RebootGraceDelay(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(dispatcher.Run())
}

func main() {
	os.Exit(cmd.Main(newUpgradeCommand(), cmd.DefaultContext(), os.Args[1:]))
}
