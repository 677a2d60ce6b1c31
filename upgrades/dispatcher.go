// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrades

import (
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/juju/seriesup/state"
)

// ErrUnknownState reports a persisted token that matches no stage.
// It is fatal by design: guessing a default stage risks repeating or
// skipping destructive operations.
const ErrUnknownState = errors.ConstError("unrecognised upgrade state")

// Registrar manages the boot-time trigger that re-invokes the
// dispatcher after a reboot.
type Registrar interface {
	Register() error
	Deregister() error
}

// RebootScheduler requests the host reboot between stages.
type RebootScheduler interface {
	Schedule(delay time.Duration) error
}

// DispatcherConfig wires a Dispatcher to its collaborators.
type DispatcherConfig struct {
	Store       state.Store
	Table       *Table
	Context     Context
	Registrar   Registrar
	Reboot      RebootScheduler
	RebootDelay time.Duration
}

// Validate returns an error if the config is incomplete.
func (cfg DispatcherConfig) Validate() error {
	if cfg.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if cfg.Table == nil {
		return errors.NotValidf("nil Table")
	}
	if cfg.Context == nil {
		return errors.NotValidf("nil Context")
	}
	if cfg.Registrar == nil {
		return errors.NotValidf("nil Registrar")
	}
	if cfg.Reboot == nil {
		return errors.NotValidf("nil Reboot")
	}
	return nil
}

// Dispatcher runs exactly one stage per invocation and then either
// arranges its own resumption after a reboot or, at the terminal state,
// cleans up every artifact the upgrade left on the host.
type Dispatcher struct {
	cfg DispatcherConfig
}

// NewDispatcher returns a Dispatcher for the given config.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{cfg: cfg}, nil
}

// Run executes one step of the state machine. On stage failure the
// persisted state is left untouched so a manual re-invocation retries
// the same stage; nothing is retried in-process.
func (d *Dispatcher) Run() error {
	current, err := d.cfg.Store.Read()
	if err != nil {
		return errors.Annotate(err, "reading upgrade state")
	}

	if current == state.Done {
		// A stale resumption trigger can re-invoke us after the
		// upgrade finished; just make sure cleanup completed.
		logger.Infof("upgrade already complete, cleaning up")
		return errors.Trace(d.cleanup())
	}

	stage, ok := d.cfg.Table.Lookup(current)
	if !ok {
		logger.Errorf("unrecognised upgrade state %q; refusing to guess a stage", current)
		return fmt.Errorf("upgrade state %q%w", current, errors.Hide(ErrUnknownState))
	}

	logger.Infof("running stage %q: %s", current, stage.Description)
	if err := stage.Run(d.cfg.Context); err != nil {
		logger.Errorf("stage %q failed: %v", current, err)
		return errors.Annotatef(err, "stage %q", current)
	}
	logger.Infof("stage %q succeeded", current)

	if err := d.cfg.Store.Write(stage.Next); err != nil {
		return errors.Annotatef(err, "recording next stage %q", stage.Next)
	}

	if stage.Next == state.Done {
		logger.Infof("all stages complete")
		return errors.Trace(d.cleanup())
	}

	if err := d.cfg.Registrar.Register(); err != nil {
		return errors.Annotate(err, "registering resumption trigger")
	}
	if err := d.cfg.Reboot.Schedule(d.cfg.RebootDelay); err != nil {
		return errors.Annotate(err, "scheduling reboot")
	}
	logger.Infof("rebooting; resuming at stage %q afterwards", stage.Next)
	return nil
}

// cleanup removes the resumption trigger and the state file so a
// finished upgrade leaves no stale artifacts behind.
func (d *Dispatcher) cleanup() error {
	if err := d.cfg.Registrar.Deregister(); err != nil {
		return errors.Annotate(err, "removing resumption trigger")
	}
	if err := d.cfg.Store.Remove(); err != nil {
		return errors.Annotate(err, "removing state file")
	}
	return nil
}
