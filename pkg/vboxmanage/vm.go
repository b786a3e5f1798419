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
	"sync"

	"github.com/go-logr/logr"
)

var (
	errShowVMInfo       = errors.New("fetching VM info")
	errStartVM          = errors.New("starting VM")
	errACPIPowerButton  = errors.New("sending ACPI power button")
	errPowerOff         = errors.New("powering off VM")
	errUnregisterVM     = errors.New("unregistering VM")
	errTakeSnapshot     = errors.New("taking snapshot")
	errDeleteSnapshot   = errors.New("deleting snapshot")
	errRestoreSnapshot  = errors.New("restoring snapshot")
	errCloneVM          = errors.New("cloning VM")
	errAddPortForward   = errors.New("adding port forward rule")
	errDelPortForward   = errors.New("deleting port forward rule")
	errSetSSHPortFwd    = errors.New("setting ssh port forward rule")
	errUnknownStartMode = errors.New("unknown start mode")
)

// VirtualMachine is a VM registered in VirtualBox. Its identity is resolved
// once by NewVirtualMachine. The showvminfo report is fetched lazily and
// cached until a mutating operation or Invalidate drops it.
type VirtualMachine struct {
	runner   Runner
	registry *Registry
	logger   logr.Logger

	name string
	uuid string

	mu     sync.Mutex
	report *Report
}

// VMOption configures a VirtualMachine.
type VMOption func(*VirtualMachine)

// WithVMLogger sets the logger of the VirtualMachine.
func WithVMLogger(logger logr.Logger) VMOption {
	return func(vm *VirtualMachine) {
		vm.logger = logger
	}
}

// NewVirtualMachine resolves key (a name or a UUID) through registry.
func NewVirtualMachine(ctx context.Context, runner Runner, registry *Registry, key string, opts ...VMOption) (*VirtualMachine, error) {
	entry, err := registry.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	vm := &VirtualMachine{
		runner:   runner,
		registry: registry,
		logger:   logr.Discard(),
		name:     entry.Name,
		uuid:     entry.UUID,
	}

	for _, opt := range opts {
		opt(vm)
	}

	vm.logger = vm.logger.WithValues("vm", vm.name, "uuid", vm.uuid)

	return vm, nil
}

// Name returns the VM name.
func (vm *VirtualMachine) Name() string {
	return vm.name
}

// UUID returns the VM UUID.
func (vm *VirtualMachine) UUID() string {
	return vm.uuid
}

// id is the identifier passed to VBoxManage. Names are not unique.
func (vm *VirtualMachine) id() string {
	if vm.uuid != "" {
		return vm.uuid
	}
	return vm.name
}

// ------------------------------------------------------ REPORT ---------------------------------------------------- //

// Report returns the cached showvminfo report, fetching it if needed.
func (vm *VirtualMachine) Report(ctx context.Context) (*Report, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.report != nil {
		return vm.report, nil
	}

	lines, err := vm.runner.Run(ctx, "showvminfo", vm.id())
	if err != nil {
		return nil, errors.Join(err, errShowVMInfo)
	}

	report, err := ParseReport(lines)
	if err != nil {
		return nil, errors.Join(err, errShowVMInfo)
	}

	vm.report = report

	return report, nil
}

// Invalidate drops the cached report.
func (vm *VirtualMachine) Invalidate() {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.report = nil
}

// Refresh drops the cached report and fetches it again.
func (vm *VirtualMachine) Refresh(ctx context.Context) (*Report, error) {
	vm.Invalidate()
	return vm.Report(ctx)
}

// Core returns the number of CPUs.
func (vm *VirtualMachine) Core(ctx context.Context) (int, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return 0, err
	}
	return r.Core()
}

// Memory returns the memory size as printed by showvminfo.
func (vm *VirtualMachine) Memory(ctx context.Context) (string, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return "", err
	}
	return r.Memory()
}

// OSType returns the guest OS.
func (vm *VirtualMachine) OSType(ctx context.Context) (string, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return "", err
	}
	return r.OSType()
}

// Status returns the VM state, e.g. "powered off (since ...)".
func (vm *VirtualMachine) Status(ctx context.Context) (string, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return "", err
	}
	return r.Status()
}

// IsRunning returns true if the VM state starts with "running".
func (vm *VirtualMachine) IsRunning(ctx context.Context) (bool, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return false, err
	}
	return r.IsRunning()
}

// NICs returns the enabled network interfaces.
func (vm *VirtualMachine) NICs(ctx context.Context) (map[int]NetworkInterface, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.NICs(), nil
}

// ConnectedNICs returns the enabled network interfaces with a connected
// cable.
func (vm *VirtualMachine) ConnectedNICs(ctx context.Context) (map[int]NetworkInterface, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.ConnectedNICs(), nil
}

// PortForwards returns the port forward rules of the NAT interfaces.
func (vm *VirtualMachine) PortForwards(ctx context.Context) ([]PortForwardRule, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.PortForwardRules(), nil
}

// SSHRule returns the ssh port forward rule, or nil if there is none.
func (vm *VirtualMachine) SSHRule(ctx context.Context) (*PortForwardRule, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.SSHRule()
}

// Snapshots returns the snapshot tree.
func (vm *VirtualMachine) Snapshots(ctx context.Context) ([]Snapshot, error) {
	r, err := vm.Report(ctx)
	if err != nil {
		return nil, err
	}
	return r.Snapshots(), nil
}

// ----------------------------------------------------- LIFECYCLE -------------------------------------------------- //

// run executes a mutating command and drops the cached report, whatever the
// outcome.
func (vm *VirtualMachine) run(ctx context.Context, opErr error, args ...string) error {
	defer vm.Invalidate()

	vm.logger.V(1).Info("running VBoxManage", "args", args)

	if _, err := vm.runner.Run(ctx, args...); err != nil {
		return errors.Join(err, opErr)
	}

	return nil
}

// Start boots the VM with the given frontend.
func (vm *VirtualMachine) Start(ctx context.Context, mode StartMode) error {
	if mode != StartHeadless && mode != StartGUI {
		return fmt.Errorf("%w: %q", errUnknownStartMode, mode)
	}
	return vm.run(ctx, errStartVM, "startvm", vm.id(), "--type", string(mode))
}

// ACPIPowerButton presses the virtual power button. The guest decides
// whether to shut down.
func (vm *VirtualMachine) ACPIPowerButton(ctx context.Context) error {
	return vm.run(ctx, errACPIPowerButton, "controlvm", vm.id(), "acpipowerbutton")
}

// PowerOff pulls the virtual power cord.
func (vm *VirtualMachine) PowerOff(ctx context.Context) error {
	return vm.run(ctx, errPowerOff, "controlvm", vm.id(), "poweroff")
}

// Unregister unregisters the VM and deletes its files. The registry is
// invalidated.
func (vm *VirtualMachine) Unregister(ctx context.Context) error {
	defer vm.registry.Invalidate()
	return vm.run(ctx, errUnregisterVM, "unregistervm", vm.id(), "--delete")
}

// ----------------------------------------------------- SNAPSHOTS -------------------------------------------------- //

// TakeSnapshot takes a snapshot named name.
func (vm *VirtualMachine) TakeSnapshot(ctx context.Context, name string) error {
	if name == "" {
		return ErrSnapshotNameRequired
	}
	return vm.run(ctx, errTakeSnapshot, "snapshot", vm.id(), "take", name)
}

// DeleteSnapshot deletes the snapshot named name.
func (vm *VirtualMachine) DeleteSnapshot(ctx context.Context, name string) error {
	if name == "" {
		return ErrSnapshotNameRequired
	}
	return vm.run(ctx, errDeleteSnapshot, "snapshot", vm.id(), "delete", name)
}

// RestoreSnapshot restores the snapshot named name, or the current snapshot
// if name is empty.
func (vm *VirtualMachine) RestoreSnapshot(ctx context.Context, name string) error {
	if name == "" {
		return vm.run(ctx, errRestoreSnapshot, "snapshot", vm.id(), "restorecurrent")
	}
	return vm.run(ctx, errRestoreSnapshot, "snapshot", vm.id(), "restore", name)
}

// ------------------------------------------------------- CLONE ---------------------------------------------------- //

// Clone creates and registers a copy of the VM. The registry is
// invalidated.
func (vm *VirtualMachine) Clone(ctx context.Context, opts CloneOptions) error {
	if opts.Name == "" {
		return ErrCloneNameRequired
	}

	defer vm.registry.Invalidate()

	return vm.run(ctx, errCloneVM, cloneArgs(vm.id(), opts)...)
}

func cloneArgs(id string, opts CloneOptions) []string {
	args := []string{"clonevm", id, "--register", "--name", opts.Name}
	if !opts.Full {
		args = append(args, "--options", "link")
	}
	if opts.Snapshot != "" {
		args = append(args, "--snapshot", opts.Snapshot)
	}
	return args
}

// --------------------------------------------------- PORT FORWARD ------------------------------------------------- //

// checkNAT returns ErrInvalidInterface unless NIC index is NAT attached.
func (vm *VirtualMachine) checkNAT(ctx context.Context, index int) error {
	nics, err := vm.NICs(ctx)
	if err != nil {
		return err
	}

	nic, ok := nics[index]
	if !ok {
		return fmt.Errorf("%w: NIC %d is not enabled", ErrInvalidInterface, index)
	}
	if !nic.IsNAT() {
		return fmt.Errorf("%w: NIC %d is attached to %q", ErrInvalidInterface, index, nic.Attachment)
	}

	return nil
}

// AddPortForward adds rule to its NAT interface.
func (vm *VirtualMachine) AddPortForward(ctx context.Context, rule PortForwardRule) error {
	if err := rule.Validate(); err != nil {
		return errors.Join(err, errAddPortForward)
	}
	if err := vm.checkNAT(ctx, rule.NIC); err != nil {
		return errors.Join(err, errAddPortForward)
	}

	return vm.run(ctx, errAddPortForward, "modifyvm", vm.id(), rule.natpfFlag(), rule.natpfValue())
}

// DeletePortForward deletes the rule named rule.Name from NIC rule.NIC.
func (vm *VirtualMachine) DeletePortForward(ctx context.Context, rule PortForwardRule) error {
	if rule.Name == "" {
		return errors.Join(ErrRuleNameRequired, errDelPortForward)
	}
	if err := vm.checkNAT(ctx, rule.NIC); err != nil {
		return errors.Join(err, errDelPortForward)
	}

	return vm.run(ctx, errDelPortForward, "modifyvm", vm.id(), rule.natpfFlag(), "delete", rule.Name)
}

// SetSSHPortForward replaces the ssh rule with one forwarding hostIP:hostPort
// to guest port 22 on the first NAT interface. An empty hostIP defaults to
// DefaultSSHHostIP.
func (vm *VirtualMachine) SetSSHPortForward(ctx context.Context, hostIP string, hostPort int) error {
	if hostIP == "" {
		hostIP = DefaultSSHHostIP
	}

	report, err := vm.Report(ctx)
	if err != nil {
		return errors.Join(err, errSetSSHPortFwd)
	}

	existing, err := report.SSHRule()
	if err != nil {
		return errors.Join(err, errSetSSHPortFwd)
	}

	nat := report.NATIndices()
	if len(nat) == 0 {
		return errors.Join(fmt.Errorf("%w: no NAT interface", ErrInvalidInterface), errSetSSHPortFwd)
	}

	rule := PortForwardRule{
		NIC:       nat[0],
		Name:      SSHRuleName,
		Protocol:  ProtocolTCP,
		HostIP:    hostIP,
		HostPort:  hostPort,
		GuestPort: SSHGuestPort,
	}

	// the existing rule is kept unless its replacement is valid
	if err := rule.Validate(); err != nil {
		return errors.Join(err, errSetSSHPortFwd)
	}

	if existing != nil {
		if err := vm.DeletePortForward(ctx, *existing); err != nil {
			return errors.Join(err, errSetSSHPortFwd)
		}
	}

	if err := vm.AddPortForward(ctx, rule); err != nil {
		return errors.Join(err, errSetSSHPortFwd)
	}

	return nil
}
