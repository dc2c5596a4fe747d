// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config carries the Master process's configuration: coord-store
// connection info, the root namespace path, logging, and the
// Assignment Manager's timeouts/startup thresholds. It follows the
// same struct-plus-defaults-plus-flag-binding shape as pingcap-pd's
// server/config.go, bound through spf13/pflag from cmd/regionmaster
// the way pd-server's Config is.
package config

import (
	"time"

	"github.com/coredb/regionmaster/server/assign"
	"github.com/coredb/regionmaster/server/log"
	"github.com/spf13/pflag"
)

// Config is the Master's full runtime configuration.
type Config struct {
	// EtcdEndpoints is the comma-joined list of etcd client URLs
	// backing the coord-store (spec §4.A).
	EtcdEndpoints string `toml:"etcd-endpoints" json:"etcd-endpoints"`

	// RootPath is the coord-store namespace root all paths in spec §6
	// are relative to (e.g. "/regionmaster").
	RootPath string `toml:"root-path" json:"root-path"`

	// Log controls the shared zap-backed logger (server/log.Config).
	Log log.Config `toml:"log" json:"log"`

	// OpeningTimeout/ClosingTimeout/OfflineTimeout/MinServersToStart/
	// FreshStartDeadline mirror assign.Config (spec §4.F); kept as
	// plain fields here, rather than embedding assign.Config
	// directly, so toml/json tags can use this package's naming
	// convention independent of assign's.
	OpeningTimeout     time.Duration `toml:"opening-timeout" json:"opening-timeout"`
	ClosingTimeout     time.Duration `toml:"closing-timeout" json:"closing-timeout"`
	OfflineTimeout     time.Duration `toml:"offline-timeout" json:"offline-timeout"`
	MinServersToStart  int           `toml:"min-servers-to-start" json:"min-servers-to-start"`
	FreshStartDeadline time.Duration `toml:"fresh-start-deadline" json:"fresh-start-deadline"`

	// RegionDataDir is the RegionServer-local root splitstore.OSFS
	// resolves split directories under (spec §4.G).
	RegionDataDir string `toml:"region-data-dir" json:"region-data-dir"`
}

// Default returns the timeouts spec §4.F names as approximate
// defaults, matching assign.DefaultConfig.
func Default() *Config {
	ac := assign.DefaultConfig()
	return &Config{
		EtcdEndpoints:      "127.0.0.1:2379",
		RootPath:           "/regionmaster",
		Log:                log.Config{Level: "info"},
		OpeningTimeout:     ac.OpeningTimeout,
		ClosingTimeout:     ac.ClosingTimeout,
		OfflineTimeout:     ac.OfflineTimeout,
		MinServersToStart:  ac.MinServersToStart,
		FreshStartDeadline: ac.FreshStartDeadline,
		RegionDataDir:      "/var/lib/regionmaster/regions",
	}
}

// AssignConfig projects this configuration onto assign.Config, the
// subset the Assignment Manager actually consumes.
func (c *Config) AssignConfig() assign.Config {
	ac := assign.DefaultConfig()
	ac.OpeningTimeout = c.OpeningTimeout
	ac.ClosingTimeout = c.ClosingTimeout
	ac.OfflineTimeout = c.OfflineTimeout
	ac.MinServersToStart = c.MinServersToStart
	ac.FreshStartDeadline = c.FreshStartDeadline
	return ac
}

// BindFlags registers every field against fs, the way pd-server's
// setCmdArgs binds individual flag.* vars onto server.Config. Called
// once from cmd/regionmaster before fs.Parse.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.EtcdEndpoints, "etcd-endpoints", c.EtcdEndpoints, "comma-separated etcd client endpoints backing the coord-store")
	fs.StringVar(&c.RootPath, "root-path", c.RootPath, "coord-store namespace root")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "log file path; empty logs to stderr")
	fs.DurationVar(&c.OpeningTimeout, "opening-timeout", c.OpeningTimeout, "OPENING transition timeout")
	fs.DurationVar(&c.ClosingTimeout, "closing-timeout", c.ClosingTimeout, "CLOSING transition timeout")
	fs.DurationVar(&c.OfflineTimeout, "offline-timeout", c.OfflineTimeout, "OFFLINE transition timeout")
	fs.IntVar(&c.MinServersToStart, "min-servers-to-start", c.MinServersToStart, "live RegionServers required before fresh-start bulk assign")
	fs.DurationVar(&c.FreshStartDeadline, "fresh-start-deadline", c.FreshStartDeadline, "bounded wait for min-servers-to-start, counted from when the first RegionServer appears")
	fs.StringVar(&c.RegionDataDir, "region-data-dir", c.RegionDataDir, "RegionServer-local root directory for region and split directories")
}
