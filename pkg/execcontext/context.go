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

// Package execcontext describes how an external command is executed: which
// extra environment variables it receives and which command (e.g. "sudo")
// is prepended to it.
package execcontext

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
)

type Context interface {
	Envs() map[string]string
	PrependCmd() []string
}

func New(envs map[string]string, prependCmd []string) Context {
	return &execContext{
		prependCmd: prependCmd,
		envs:       envs,
	}
}

// Empty returns a Context without extra envs nor prepended command.
func Empty() Context {
	return New(nil, nil)
}

type execContext struct {
	envs       map[string]string
	prependCmd []string
}

// Envs implements Context.
func (c *execContext) Envs() map[string]string {
	out := make(map[string]string, len(c.envs))
	maps.Copy(out, c.envs)
	return out
}

// PrependCmd implements Context.
func (c *execContext) PrependCmd() []string {
	out := make([]string, len(c.prependCmd))
	copy(out, c.prependCmd)
	return out
}

// Argv returns the full argument vector that will be executed for name and
// args, including the prepended command.
func Argv(execCtx Context, name string, args ...string) []string {
	out := execCtx.PrependCmd()
	out = append(out, name)
	return append(out, args...)
}

// CommandContext builds an *exec.Cmd for name and args with the execution
// context applied. The process inherits the current environment, extended
// with the context's envs (sorted by key).
func CommandContext(ctx context.Context, execCtx Context, name string, args ...string) *exec.Cmd {
	argv := Argv(execCtx, name, args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	envs := execCtx.Envs()
	if len(envs) == 0 {
		return cmd
	}

	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, envs[k]))
	}

	return cmd
}

// FormatCmd renders the command as it would be typed in a shell. It is meant
// for logs and error messages.
func FormatCmd(execCtx Context, cmd ...string) string {
	out := ""

	envs := execCtx.Envs()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		out = fmt.Sprintf("%s%s=%q ", out, k, envs[k])
	}

	for _, s := range execCtx.PrependCmd() {
		out = safelyAppendToCmd(out, s)
	}

	for _, s := range cmd {
		out = safelyAppendToCmd(out, s)
	}

	return strings.TrimSpace(out)
}

var unquottable = map[string]struct{}{
	"&&": {},
	"||": {},
	";":  {},
	"&":  {},
}

func safelyAppendToCmd(cmd string, s string) string {
	if _, ok := unquottable[s]; ok {
		return fmt.Sprintf("%s%s ", cmd, s)
	}
	return fmt.Sprintf("%s%q ", cmd, s)
}
