// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logging configures the process-wide zerolog logger, matching the
// teacher's convention of a console writer in development and structured
// JSON in production, with per-component child loggers created via
// log.With().Str("component", name).Logger().
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures process-wide logging.
type Options struct {
	Level  string // "debug", "info", "warn", "error"
	Pretty bool   // console writer instead of JSON
}

// Configure sets the global zerolog logger per opts. Call once at process
// start, before any component logger is derived from log.Logger.
func Configure(opts Options) error {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// Component returns a child logger tagged with component=name, the idiom
// every package in this module uses instead of the bare global logger.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
