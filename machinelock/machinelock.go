// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package machinelock guards against two upgrade runs executing
// concurrently on one host, such as a stale boot trigger racing a
// manual re-invocation. The newer invocation is the one that backs off.
package machinelock

import (
	"fmt"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/mutex/v2"
)

var logger = loggo.GetLogger("seriesup.machinelock")

// ErrHeld reports that another upgrade run holds the machine lock.
const ErrHeld = errors.ConstError("upgrade already in progress on this host")

// acquire is patched in tests.
var acquire = mutex.Acquire

// Config names the lock and where its holder report lives.
type Config struct {
	Name       string
	Clock      clock.Clock
	ReportPath string
}

// Lock is a held machine lock.
type Lock struct {
	releaser   mutex.Releaser
	reportPath string
}

// Acquire takes the machine-wide mutex without waiting for a current
// holder to finish: contention means another run is active and this
// invocation must exit instead. While held, a report file records the
// holder so an operator can see what is running.
func Acquire(cfg Config) (*Lock, error) {
	releaser, err := acquire(mutex.Spec{
		Name:    cfg.Name,
		Clock:   cfg.Clock,
		Delay:   250 * time.Millisecond,
		Timeout: time.Second,
	})
	if errors.Is(err, mutex.ErrTimeout) {
		return nil, fmt.Errorf("machine lock %q held by another process%w",
			cfg.Name, errors.Hide(ErrHeld))
	}
	if err != nil {
		return nil, errors.Annotatef(err, "acquiring machine lock %q", cfg.Name)
	}

	lock := &Lock{releaser: releaser, reportPath: cfg.ReportPath}
	report := fmt.Sprintf("pid: %d\nstarted: %s\n",
		os.Getpid(), cfg.Clock.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(cfg.ReportPath, []byte(report), 0644); err != nil {
		// The report is informational only; losing it must not stop
		// the upgrade.
		logger.Warningf("cannot write lock report %q: %v", cfg.ReportPath, err)
	}
	return lock, nil
}

// Release removes the holder report and releases the mutex. It is safe
// to call more than once.
func (l *Lock) Release() {
	if l.releaser == nil {
		return
	}
	if err := os.Remove(l.reportPath); err != nil && !os.IsNotExist(err) {
		logger.Warningf("cannot remove lock report %q: %v", l.reportPath, err)
	}
	l.releaser.Release()
	l.releaser = nil
}
