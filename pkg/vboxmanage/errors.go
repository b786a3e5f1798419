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
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVMNotFound       = errors.New("VM not found")
	ErrAmbiguousName    = errors.New("VM name is ambiguous, use the UUID instead")
	ErrCommandFailed    = errors.New("VBoxManage command failed")
	ErrParseReport      = errors.New("failed to parse VM info")
	ErrAmbiguousRule    = errors.New("more than one ssh port forward rule")
	ErrInvalidInterface = errors.New("network interface is not attached to NAT")

	ErrVMKeyRequired        = errors.New("VM name or UUID is required")
	ErrSnapshotNameRequired = errors.New("snapshot name is required")
	ErrCloneNameRequired    = errors.New("clone name is required")
	ErrRuleNameRequired     = errors.New("port forward rule name is required")
	ErrInvalidRule          = errors.New("invalid port forward rule")
)

// CommandError is returned by the Runner when the command exits with a
// non-zero status.
type CommandError struct {
	// Args is the attempted argument vector, starting with the VBoxManage
	// binary. The prepended command of the execution context is not included.
	Args []string
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (exit code %d): %v",
		ErrCommandFailed, strings.Join(e.Args, " "), e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

func parseError(field string) error {
	return fmt.Errorf("%w: field %q not found", ErrParseReport, field)
}
