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

// Package log wires github.com/pingcap/log (a zap wrapper) as the
// single logging entry point for the assignment core, the way
// pingcap-pd's server package does.
package log

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Config controls the global logger. Mirrors the subset of pd's log
// config this module actually exercises.
type Config struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
}

// Init installs the global zap-backed logger used by every package
// via the Named helper below. Safe to call once at process start.
func Init(cfg Config) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	logCfg := &log.Config{Level: level}
	if cfg.File != "" {
		logCfg.File = log.FileLogConfig{Filename: cfg.File}
	}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// Named returns a child logger scoped to name, e.g. Named("assign").
func Named(name string) *zap.Logger {
	return log.L().Named(name)
}
