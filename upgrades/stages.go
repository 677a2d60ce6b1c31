// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrades

import (
	"github.com/juju/errors"

	"github.com/juju/seriesup/core/series"
	"github.com/juju/seriesup/state"
)

// newPrepareStage returns the stage run from the Initial state: make a
// database backup if one is configured, drop the packages the operator
// wants gone, and bring the current release fully up to date before the
// first release hop.
func newPrepareStage(next state.State) Stage {
	return Stage{
		State:       state.Initial,
		Description: "prepare host for release upgrades",
		Run:         runPrepare,
		Next:        next,
	}
}

func runPrepare(ctx Context) error {
	cfg := ctx.Config()
	if cfg.Database != "" {
		filename, err := ctx.Backups().Create(cfg.Database)
		switch {
		case errors.Is(err, errors.NotFound):
			// An absent dump tool downgrades the backup to a warning;
			// a failed dump of a present tool is still fatal.
			logger.Warningf("backup tool not installed, skipping backup of %q", cfg.Database)
		case err != nil:
			return errors.Annotatef(err, "backing up database %q", cfg.Database)
		default:
			logger.Infof("database %q backed up to %q", cfg.Database, filename)
		}
	}

	pm := ctx.PackageManager()
	if len(cfg.PurgePackages) > 0 {
		if err := pm.Purge(cfg.PurgePackages); err != nil {
			return errors.Trace(err)
		}
	}
	if err := pm.UpdateIndex(); err != nil {
		return errors.Trace(err)
	}
	if err := pm.UpgradePackages(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(pm.Autoremove())
}

// newSeriesStage returns the stage that moves the host to the given
// release. If the host is already at or past it, as happens when a
// crash lands between the release upgrade finishing and the state
// advancing, the stage does nothing, which is what makes replays safe.
func newSeriesStage(rel series.Release, next state.State) Stage {
	return Stage{
		State:       state.State(rel.Name),
		Description: "upgrade host to " + rel.Name + " (" + rel.Version.String() + ")",
		Run: func(ctx Context) error {
			return runSeriesUpgrade(ctx, rel)
		},
		Next: next,
	}
}

func runSeriesUpgrade(ctx Context, rel series.Release) error {
	pm := ctx.PackageManager()
	current, err := pm.HostRelease()
	if err != nil {
		return errors.Trace(err)
	}
	if current.Compare(rel.Version) >= 0 {
		logger.Infof("host already at %v, nothing to do for %q", current, rel.Name)
		return nil
	}

	if err := pm.UpdateIndex(); err != nil {
		return errors.Trace(err)
	}
	if err := pm.UpgradePackages(); err != nil {
		return errors.Trace(err)
	}
	if err := pm.UpgradeRelease(rel.Name); err != nil {
		return errors.Trace(err)
	}

	// The release upgrade tool can report success without having moved
	// the host, so believe os-release rather than the exit status.
	after, err := pm.HostRelease()
	if err != nil {
		return errors.Trace(err)
	}
	if after.Compare(rel.Version) < 0 {
		return errors.Errorf("host reports release %v after upgrade to %q (%v)",
			after, rel.Name, rel.Version)
	}
	logger.Infof("host now at %v", after)
	return errors.Trace(pm.Autoremove())
}
