// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the optional operator configuration for an
// upgrade run. A missing file means defaults; a present but unreadable
// or invalid file is fatal, since a half-applied configuration could
// aim the upgrade at the wrong release.
package config

import (
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/juju/seriesup/core/paths"
	"github.com/juju/seriesup/core/series"
)

// Config holds the operator-tunable parts of an upgrade run. Everything
// has a sensible default; the zero-effort invocation upgrades to the
// latest known LTS with no database backup and no package purging.
type Config struct {
	// TargetSeries is the series at which the upgrade path ends.
	TargetSeries string `yaml:"target-series"`

	// Database names a MySQL database to dump before the first
	// package mutation. Empty disables the backup.
	Database string `yaml:"database"`

	// BackupDir receives the timestamped dump files.
	BackupDir string `yaml:"backup-dir"`

	// CompressBackup gzips the dump as it is written.
	CompressBackup bool `yaml:"compress-backup"`

	// PurgePackages are purged during the preparation stage. Packages
	// that are not installed are skipped with a warning.
	PurgePackages []string `yaml:"purge-packages"`

	// RebootDelay is the grace delay passed to the reboot facility,
	// parsed as a Go duration. It is rounded up to at least a minute
	// so log writes settle before the host goes down.
	RebootDelay string `yaml:"reboot-delay"`

	rebootDelay time.Duration
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		TargetSeries:   series.Latest().Name,
		BackupDir:      paths.BackupDir,
		CompressBackup: true,
		RebootDelay:    "1m",
		rebootDelay:    time.Minute,
	}
}

// Read loads and validates the configuration at path. A missing file
// yields Default().
func Read(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading config from %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Annotatef(err, "parsing config from %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Annotatef(err, "invalid config in %q", path)
	}
	return cfg, nil
}

// Validate checks the configuration and resolves derived fields.
func (c *Config) Validate() error {
	if _, err := series.ReleaseVersion(c.TargetSeries); err != nil {
		return errors.NotValidf("target series %q", c.TargetSeries)
	}
	if c.Database != "" && c.BackupDir == "" {
		return errors.NotValidf("backup of %q with empty backup-dir", c.Database)
	}
	delay, err := time.ParseDuration(c.RebootDelay)
	if err != nil {
		return errors.NotValidf("reboot-delay %q", c.RebootDelay)
	}
	if delay < time.Minute {
		delay = time.Minute
	}
	c.rebootDelay = delay
	return nil
}

// RebootGraceDelay returns the parsed reboot delay.
func (c Config) RebootGraceDelay() time.Duration {
	return c.rebootDelay
}
