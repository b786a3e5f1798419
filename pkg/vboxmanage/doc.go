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

// Package vboxmanage drives VirtualBox through the VBoxManage command-line
// tool.
//
// The package is made of four parts:
//
//   - Runner: executes a VBoxManage subcommand and returns its stdout lines
//   - Registry: caches "VBoxManage list vms" and resolves a VM by name or UUID
//   - Report: parses "VBoxManage showvminfo" in a single pass
//   - VirtualMachine: typed accessors over the report and lifecycle operations
//
// # Caching
//
// The Registry is loaded at most once until Invalidate or Reload is called.
// Each VirtualMachine caches its report; every mutating operation drops it,
// and Unregister and Clone also invalidate the Registry. Nothing verifies
// that VirtualBox actually reached the requested state: callers re-query.
//
// # Example Usage
//
//	import (
//	    "context"
//	    "errors"
//	    "github.com/alexandremahdhaoui/vboxctl/pkg/execcontext"
//	    "github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
//	)
//
//	ctx := context.Background()
//	runner := vboxmanage.NewRunner(execcontext.Empty())
//	registry := vboxmanage.NewRegistry(runner)
//
//	vm, err := vboxmanage.NewVirtualMachine(ctx, runner, registry, "dev-box")
//	if errors.Is(err, vboxmanage.ErrAmbiguousName) {
//	    // several VMs are named "dev-box", use the UUID
//	}
//
//	if err := vm.SetSSHPortForward(ctx, "", 2222); err != nil {
//	    // handle error
//	}
//	err = vm.Start(ctx, vboxmanage.StartHeadless)
//
// # Errors
//
// Failures wrap one of ErrVMNotFound, ErrAmbiguousName, ErrCommandFailed,
// ErrParseReport, ErrAmbiguousRule or ErrInvalidInterface and can be tested
// with errors.Is. Nothing is retried.
package vboxmanage
