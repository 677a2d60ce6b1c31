// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package paths defines the well-known host locations used by seriesup.
package paths

const (
	// DataDir holds the persisted upgrade state and the lock report.
	DataDir = "/var/lib/seriesup"

	// StateFile is the single-line file recording the next upgrade
	// stage to execute.
	StateFile = DataDir + "/state"

	// LockReportFile describes the holder of the machine lock while an
	// upgrade run is in progress.
	LockReportFile = DataDir + "/seriesup.lock"

	// ConfFile is the optional operator configuration file.
	ConfFile = "/etc/seriesup.conf"

	// LogDir and LogFile receive the rotating upgrade log. Every line
	// is also written to standard output.
	LogDir  = "/var/log/seriesup"
	LogFile = LogDir + "/seriesup.log"

	// BackupDir is the default destination for pre-upgrade database
	// dumps.
	BackupDir = "/var/backups/seriesup"
)
