// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backups_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/utils/v4/exec"
	gc "gopkg.in/check.v1"

	"github.com/juju/seriesup/backups"
)

type backupsSuite struct {
	testing.IsolationSuite

	commands []string
	response *exec.ExecResponse
	clock    *testclock.Clock
}

var _ = gc.Suite(&backupsSuite{})

func (s *backupsSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.commands = nil
	s.response = &exec.ExecResponse{}
	s.clock = testclock.NewClock(time.Date(2025, 11, 3, 4, 5, 6, 0, time.UTC))
	s.PatchValue(backups.LookPath, func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	})
	s.PatchValue(backups.RunCommands, func(params exec.RunParams) (*exec.ExecResponse, error) {
		s.commands = append(s.commands, params.Commands)
		return s.response, nil
	})
}

func (s *backupsSuite) TestCreateCompressed(c *gc.C) {
	creator := backups.NewMysqlBackups("/var/backups/seriesup", true, s.clock)
	filename, err := creator.Create("wiki")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(filename, gc.Equals, "/var/backups/seriesup/wiki-20251103-040506.sql.gz")
	c.Assert(s.commands, gc.HasLen, 1)
	c.Assert(s.commands[0], jc.Contains, "set -o pipefail")
	c.Assert(s.commands[0], jc.Contains, "mysqldump --single-transaction 'wiki' | gzip -c")
}

func (s *backupsSuite) TestCreateUncompressed(c *gc.C) {
	creator := backups.NewMysqlBackups("/tmp/dumps", false, s.clock)
	filename, err := creator.Create("wiki")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(filename, gc.Equals, "/tmp/dumps/wiki-20251103-040506.sql")
	c.Assert(s.commands[0], gc.Not(jc.Contains), "gzip")
}

func (s *backupsSuite) TestMissingToolIsNotFound(c *gc.C) {
	s.PatchValue(backups.LookPath, func(name string) (string, error) {
		return "", errors.Errorf("%q not found on PATH", name)
	})
	creator := backups.NewMysqlBackups("/tmp/dumps", true, s.clock)
	_, err := creator.Create("wiki")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Assert(s.commands, gc.HasLen, 0)
}

func (s *backupsSuite) TestDumpFailure(c *gc.C) {
	s.response = &exec.ExecResponse{
		Code:   2,
		Stderr: []byte("mysqldump: Got error: 1049: Unknown database 'wiki'"),
	}
	creator := backups.NewMysqlBackups("/tmp/dumps", true, s.clock)
	_, err := creator.Create("wiki")
	c.Assert(err, gc.ErrorMatches, `dump of database "wiki" failed \(exit 2\): mysqldump: Got error.*`)
}
