// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backups produces a point-in-time export of a named database
// before the first destructive stage of an upgrade. The dump tool is an
// external collaborator: its absence is reported as NotFound so the
// caller can treat a host without the tool as an advisory condition.
package backups

import (
	"fmt"
	osexec "os/exec"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"
	"github.com/juju/utils/v4/exec"
)

var logger = loggo.GetLogger("seriesup.backups")

const dumpTool = "mysqldump"

// Creator produces database backups.
type Creator interface {
	// Create dumps the named database and returns the path of the
	// backup file. A NotFound error means the dump tool is not
	// installed on the host.
	Create(database string) (string, error)
}

var (
	lookPath    = osexec.LookPath
	runCommands = exec.RunCommands
)

type mysqlBackups struct {
	dir      string
	compress bool
	clock    clock.Clock
}

// NewMysqlBackups returns a Creator writing timestamped dump files into
// dir, gzipped when compress is set.
func NewMysqlBackups(dir string, compress bool, clk clock.Clock) Creator {
	return &mysqlBackups{dir: dir, compress: compress, clock: clk}
}

// Create implements Creator. The dump is streamed through the shell
// straight into the target file so it is never held in memory;
// pipefail makes a mid-stream dump failure surface as the command's
// exit status.
func (b *mysqlBackups) Create(database string) (string, error) {
	if _, err := lookPath(dumpTool); err != nil {
		return "", errors.NotFoundf("backup tool %q", dumpTool)
	}

	stamp := b.clock.Now().UTC().Format("20060102-150405")
	filename := fmt.Sprintf("%s/%s-%s.sql", b.dir, database, stamp)
	pipeline := fmt.Sprintf("%s --single-transaction %s", dumpTool, utils.ShQuote(database))
	if b.compress {
		filename += ".gz"
		pipeline += " | gzip -c"
	}

	commands := fmt.Sprintf(""+
		"set -o pipefail\n"+
		"mkdir -p %s\n"+
		"%s > %s\n",
		utils.ShQuote(b.dir), pipeline, utils.ShQuote(filename))
	logger.Infof("backing up database %q to %q", database, filename)

	result, err := runCommands(exec.RunParams{Commands: commands})
	if err != nil {
		return "", errors.Annotatef(err, "dumping database %q", database)
	}
	if result.Code != 0 {
		return "", errors.Errorf("dump of database %q failed (exit %d): %s",
			database, result.Code, result.Stderr)
	}
	return filename, nil
}
