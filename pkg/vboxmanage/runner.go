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

package vboxmanage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/vboxctl/pkg/execcontext"
	"github.com/go-logr/logr"
)

// DefaultBinary is the name of the VBoxManage executable looked up in PATH.
const DefaultBinary = "VBoxManage"

// --------------------------------------------------- INTERFACES --------------------------------------------------- //

// Runner executes VBoxManage subcommands.
type Runner interface {
	// Run executes VBoxManage with args and returns its standard output split
	// into lines. A non-zero exit status returns a *CommandError.
	Run(ctx context.Context, args ...string) ([]string, error)
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// RunnerOption configures the Runner returned by NewRunner.
type RunnerOption func(*runner)

// WithBinary overrides the VBoxManage executable.
func WithBinary(path string) RunnerOption {
	return func(r *runner) {
		r.binary = path
	}
}

// WithLogger sets the logger. Invocations are logged at V(1).
func WithLogger(logger logr.Logger) RunnerOption {
	return func(r *runner) {
		r.logger = logger
	}
}

// WithMetrics sets the collectors observed after each invocation.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *runner) {
		r.metrics = m
	}
}

// WithTimeout bounds each invocation. Zero means no timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *runner) {
		r.timeout = d
	}
}

// WithStderr sets where the standard error of VBoxManage is written.
func WithStderr(w io.Writer) RunnerOption {
	return func(r *runner) {
		r.stderr = w
	}
}

// NewRunner returns a Runner executing VBoxManage within execCtx.
func NewRunner(execCtx execcontext.Context, opts ...RunnerOption) Runner {
	if execCtx == nil {
		execCtx = execcontext.Empty()
	}

	r := &runner{
		execCtx: execCtx,
		binary:  DefaultBinary,
		logger:  logr.Discard(),
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// --------------------------------------------- CONCRETE IMPLEMENTATION -------------------------------------------- //

type runner struct {
	execCtx execcontext.Context
	binary  string
	logger  logr.Logger
	metrics *Metrics
	timeout time.Duration
	stderr  io.Writer
}

func (r *runner) Run(ctx context.Context, args ...string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := append([]string{r.binary}, args...)

	var stdout bytes.Buffer
	cmd := execcontext.CommandContext(ctx, r.execCtx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = r.stderr

	r.logger.V(1).Info("running command", "cmd", execcontext.FormatCmd(r.execCtx, argv...))

	start := time.Now()
	err := cmd.Run()
	r.metrics.observe(args, time.Since(start), err)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		r.logger.V(1).Info("command failed", "args", args, "exitCode", exitCode, "err", err.Error())

		return nil, &CommandError{
			Args:     argv,
			ExitCode: exitCode,
			Err:      err,
		}
	}

	return splitLines(stdout.String()), nil
}

// splitLines splits s on newlines, dropping the "\r" of CRLF endings and
// the empty element after a trailing newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}
