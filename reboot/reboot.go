// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reboot asks the operating system to restart the host after a
// short grace delay. Once the request is accepted there is no
// cancellation path; an operator who needs to stop a bad upgrade must
// intervene out of band.
package reboot

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("seriesup.reboot")

// Scheduler requests a host reboot.
type Scheduler interface {
	// Schedule arranges a reboot after at least the given delay. It
	// returns as soon as the request is accepted; it never waits for
	// the reboot itself.
	Schedule(delay time.Duration) error
}

var runCommand = func(args []string) error {
	err := exec.Command(args[0], args[1:]...).Run()
	return errors.Trace(err)
}

type scheduler struct{}

// NewScheduler returns the production Scheduler.
func NewScheduler() Scheduler {
	return scheduler{}
}

// Schedule implements Scheduler. shutdown takes whole minutes; the
// delay is rounded up and never below one minute so pending log writes
// reach disk before the host goes down.
func (scheduler) Schedule(delay time.Duration) error {
	minutes := int((delay + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	args := []string{
		"shutdown", "-r", fmt.Sprintf("+%d", minutes),
		"seriesup release upgrade reboot",
	}
	logger.Infof("requesting reboot in %d minute(s)", minutes)
	if err := runCommand(args); err != nil {
		return errors.Annotate(err, "scheduling reboot")
	}
	return nil
}
