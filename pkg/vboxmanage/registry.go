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
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	errListVMs   = errors.New("listing VMs")
	errResolveVM = errors.New("resolving VM")
)

// listVMsPattern matches a line of "VBoxManage list vms":
//
//	"my vm" {c0ffee00-0000-4000-8000-000000000000}
var listVMsPattern = regexp.MustCompile(`^"(.*)"\s+\{([0-9a-fA-F-]+)\}$`)

// Registry caches the VMs registered in VirtualBox. The list is fetched at
// most once until Invalidate or Reload is called. A Registry is safe for
// concurrent use.
type Registry struct {
	runner Runner

	mu      sync.Mutex
	loaded  bool
	entries []Entry
}

// NewRegistry returns an empty Registry backed by runner.
func NewRegistry(runner Runner) *Registry {
	return &Registry{runner: runner}
}

// List returns every registered VM.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		if err := r.load(ctx); err != nil {
			return nil, err
		}
	}

	return slices.Clone(r.entries), nil
}

// Names returns the names of every registered VM.
func (r *Registry) Names(ctx context.Context) ([]string, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}

	return out, nil
}

// Invalidate drops the cached list. The next call fetches it again.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaded = false
	r.entries = nil
}

// Reload fetches the list again and returns it.
func (r *Registry) Reload(ctx context.Context) ([]Entry, error) {
	r.Invalidate()
	return r.List(ctx)
}

// Resolve finds a VM by UUID or by exact name. A key that is a known UUID
// wins over a VM named like it.
func (r *Registry) Resolve(ctx context.Context, key string) (Entry, error) {
	if key == "" {
		return Entry{}, ErrVMKeyRequired
	}

	entries, err := r.List(ctx)
	if err != nil {
		return Entry{}, errors.Join(err, errResolveVM)
	}

	if id, err := uuid.Parse(key); err == nil {
		for _, e := range entries {
			if strings.EqualFold(e.UUID, id.String()) {
				return e, nil
			}
		}
	}

	var matches []Entry
	for _, e := range entries {
		if e.Name == key {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %q", ErrVMNotFound, key)
	case 1:
		return matches[0], nil
	default:
		return Entry{}, fmt.Errorf("%w: %d VMs named %q", ErrAmbiguousName, len(matches), key)
	}
}

// load must be called with r.mu held.
func (r *Registry) load(ctx context.Context) error {
	lines, err := r.runner.Run(ctx, "list", "vms")
	if err != nil {
		return errors.Join(err, errListVMs)
	}

	r.entries = parseListVMs(lines)
	r.loaded = true

	return nil
}

func parseListVMs(lines []string) []Entry {
	var out []Entry
	for _, line := range lines {
		m := listVMsPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		out = append(out, Entry{Name: m[1], UUID: m[2]})
	}
	return out
}
