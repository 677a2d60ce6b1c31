// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package upgrades drives a multi-release upgrade of the host, one
// stage per invocation, with a reboot between stages. Progress lives in
// a persisted state token so a run that stops, whether by reboot, crash
// or stage failure, resumes at the right stage when re-invoked.
package upgrades

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/version/v2"

	"github.com/juju/seriesup/core/series"
	"github.com/juju/seriesup/state"
)

var logger = loggo.GetLogger("seriesup.upgrades")

// Stage is one entry of the upgrade table: the work bound to a state
// token and the token that follows it on success.
type Stage struct {
	// State is the persisted token selecting this stage.
	State state.State

	// Description says what the stage does, for the log.
	Description string

	// Run executes the stage. It must be safe to re-run: the
	// dispatcher only advances the state after success, so a crash can
	// replay a stage against a host the previous attempt already
	// partially (or fully) mutated.
	Run func(Context) error

	// Next is persisted after Run succeeds. state.Done ends the
	// upgrade; any other value is executed after the next reboot.
	Next state.State
}

// Table is the explicit current-state to (executor, next-state) map the
// dispatcher walks. Making the stage graph a data structure keeps the
// unknown-state check exhaustive: a token is valid exactly when it is a
// key here.
type Table struct {
	stages map[state.State]Stage
	order  []state.State
}

// NewTable builds the stage table for a host currently running the
// given release, aiming at the target series. A target behind the host
// is rejected; a host already at the target is allowed, because a crash
// between the final release hop and the state advancing replays against
// exactly that host. The table holds a stage for every known release up
// to the target, not just those ahead of the host: a replayed stage
// whose release the host already reached must stay recognisable, and
// such stages no-op when run.
func NewTable(host version.Number, target string) (*Table, error) {
	targetVersion, err := series.ReleaseVersion(target)
	if err != nil {
		return nil, errors.NotValidf("target series %q", target)
	}
	if host.Compare(targetVersion) > 0 {
		return nil, errors.NotValidf("target series %q behind host release %v", target, host)
	}

	var hops []series.Release
	for _, rel := range series.Supported() {
		if rel.Version.Compare(targetVersion) <= 0 {
			hops = append(hops, rel)
		}
	}

	t := &Table{stages: make(map[state.State]Stage)}
	for i, rel := range hops {
		next := state.Done
		if i+1 < len(hops) {
			next = state.State(hops[i+1].Name)
		}
		t.add(newSeriesStage(rel, next))
	}

	initialNext := state.Done
	for _, rel := range hops {
		if rel.Version.Compare(host) > 0 {
			initialNext = state.State(rel.Name)
			break
		}
	}
	if initialNext == state.Done {
		logger.Warningf("host release %v already at target %q", host, target)
	}
	t.add(newPrepareStage(initialNext))
	return t, nil
}

func (t *Table) add(stage Stage) {
	t.stages[stage.State] = stage
	t.order = append(t.order, stage.State)
}

// Lookup returns the stage bound to the given token.
func (t *Table) Lookup(s state.State) (Stage, bool) {
	stage, ok := t.stages[s]
	return stage, ok
}

// States returns the valid state tokens, series stages first in
// upgrade order, then the initial stage.
func (t *Table) States() []state.State {
	states := make([]state.State, len(t.order))
	copy(states, t.order)
	return states
}
