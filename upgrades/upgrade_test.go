// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package upgrades_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/version/v2"
	gc "gopkg.in/check.v1"

	"github.com/juju/seriesup/state"
	"github.com/juju/seriesup/upgrades"
)

type tableSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&tableSuite{})

func (s *tableSuite) TestUnknownTarget(c *gc.C) {
	_, err := upgrades.NewTable(version.MustParse("20.04"), "sid")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *tableSuite) TestInitialChainsToFirstHop(c *gc.C) {
	table, err := upgrades.NewTable(version.MustParse("20.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)

	stage, ok := table.Lookup(state.Initial)
	c.Assert(ok, jc.IsTrue)
	c.Assert(stage.Next, gc.Equals, state.State("jammy"))
}

func (s *tableSuite) TestSingleHopChain(c *gc.C) {
	table, err := upgrades.NewTable(version.MustParse("22.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)

	stage, ok := table.Lookup(state.Initial)
	c.Assert(ok, jc.IsTrue)
	c.Assert(stage.Next, gc.Equals, state.State("noble"))

	stage, ok = table.Lookup(state.State("noble"))
	c.Assert(ok, jc.IsTrue)
	c.Assert(stage.Next, gc.Equals, state.Done)
}

func (s *tableSuite) TestHostBeyondTargetRejected(c *gc.C) {
	_, err := upgrades.NewTable(version.MustParse("24.04"), "jammy")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Assert(err, gc.ErrorMatches, `target series "jammy" behind host release 24\.4\.0 not valid`)
}

func (s *tableSuite) TestHostAtTargetConvergesToDone(c *gc.C) {
	// A crash after the last release hop leaves the host at the target
	// with a non-terminal token, so an equal release must still build a
	// table rather than be rejected.
	table, err := upgrades.NewTable(version.MustParse("24.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)

	stage, ok := table.Lookup(state.Initial)
	c.Assert(ok, jc.IsTrue)
	c.Assert(stage.Next, gc.Equals, state.Done)

	_, ok = table.Lookup(state.State("noble"))
	c.Assert(ok, jc.IsTrue)
}

func (s *tableSuite) TestStaleStageStaysRecognisable(c *gc.C) {
	// A host that crashed after reaching jammy but before the state
	// advanced still finds its "jammy" stage in a freshly built table.
	table, err := upgrades.NewTable(version.MustParse("22.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)

	_, ok := table.Lookup(state.State("jammy"))
	c.Assert(ok, jc.IsTrue)
}

func (s *tableSuite) TestEveryChainReachesDone(c *gc.C) {
	table, err := upgrades.NewTable(version.MustParse("18.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)

	for _, token := range table.States() {
		current := token
		for steps := 0; current != state.Done; steps++ {
			if steps > len(table.States()) {
				c.Fatalf("chain from %q does not terminate", token)
			}
			stage, ok := table.Lookup(current)
			c.Assert(ok, jc.IsTrue, gc.Commentf("chain from %q hit unknown state %q", token, current))
			current = stage.Next
		}
	}
}

func (s *tableSuite) TestUnknownTokenNotInTable(c *gc.C) {
	table, err := upgrades.NewTable(version.MustParse("20.04"), "noble")
	c.Assert(err, jc.ErrorIsNil)
	_, ok := table.Lookup(state.State("unknown_stage"))
	c.Assert(ok, jc.IsFalse)
	_, ok = table.Lookup(state.Done)
	c.Assert(ok, jc.IsFalse)
}
