// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package series holds the ordered table of Ubuntu LTS releases that
// seriesup knows how to upgrade between. The table is policy, not
// computation: a release can only be reached from its predecessor, one
// hop at a time, because the release upgrade tool supports no direct
// jumps.
package series

import (
	"github.com/juju/errors"
	"github.com/juju/version/v2"
)

// Release pairs an Ubuntu series name with its numeric release version
// as reported by VERSION_ID in os-release.
type Release struct {
	Name    string
	Version version.Number
}

// supported orders the releases seriesup can upgrade between, oldest
// first. Extending the upgrade path is a matter of appending here.
var supported = []Release{
	{Name: "bionic", Version: version.MustParse("18.04")},
	{Name: "focal", Version: version.MustParse("20.04")},
	{Name: "jammy", Version: version.MustParse("22.04")},
	{Name: "noble", Version: version.MustParse("24.04")},
}

// Supported returns the known releases, oldest first. The returned
// slice is a copy.
func Supported() []Release {
	rels := make([]Release, len(supported))
	copy(rels, supported)
	return rels
}

// Latest returns the newest release in the table.
func Latest() Release {
	return supported[len(supported)-1]
}

// ReleaseVersion returns the release version for the named series.
func ReleaseVersion(name string) (version.Number, error) {
	for _, rel := range supported {
		if rel.Name == name {
			return rel.Version, nil
		}
	}
	return version.Zero, errors.NotFoundf("series %q", name)
}
