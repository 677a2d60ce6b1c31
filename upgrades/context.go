// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrades

import (
	"github.com/juju/seriesup/backups"
	"github.com/juju/seriesup/config"
	"github.com/juju/seriesup/packaging"
)

// Context gives stage executors access to their collaborators. Stages
// get no other input: everything else is ambient system state.
type Context interface {
	// PackageManager mutates the installed package set.
	PackageManager() packaging.Manager

	// Backups produces pre-upgrade database dumps.
	Backups() backups.Creator

	// Config is the operator configuration for this run.
	Config() config.Config
}

// NewContext returns a Context wired to the given collaborators.
func NewContext(pm packaging.Manager, creator backups.Creator, cfg config.Config) Context {
	return &upgradeContext{pm: pm, creator: creator, cfg: cfg}
}

type upgradeContext struct {
	pm      packaging.Manager
	creator backups.Creator
	cfg     config.Config
}

func (c *upgradeContext) PackageManager() packaging.Manager {
	return c.pm
}

func (c *upgradeContext) Backups() backups.Creator {
	return c.creator
}

func (c *upgradeContext) Config() config.Config {
	return c.cfg
}
