// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the logger of the vboxctl binary. Library packages
// take a logr.Logger; this package backs it with zap and bridges log/slog to
// it so both end up in the same stream.
package logging

import (
	"fmt"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger behavior.
type Options struct {
	// Development enables human-readable console output.
	Development bool

	// Level is the minimum zap level. logr's V(1) maps to zapcore.DebugLevel.
	Level zapcore.Level

	// OutputPaths defaults to stderr so that stdout carries command output.
	OutputPaths []string
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Development: false,
		Level:       zapcore.InfoLevel,
		OutputPaths: []string{"stderr"},
	}
}

// ParseLevel parses a level name such as "debug", "info" or "error".
func ParseLevel(s string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// Setup builds the logr.Logger and sets it as the slog default.
// The returned sync function flushes buffered entries; call it before exit.
func Setup(opts Options) (logr.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(opts.Level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("building zap logger: %w", err)
	}

	logger := zapr.NewLogger(zl)
	slog.SetDefault(slog.New(logr.ToSlogHandler(logger)))

	return logger, func() { _ = zl.Sync() }, nil
}
