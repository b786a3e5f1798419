/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered VMs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.registry.List(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]vmView, 0, len(entries))
			for _, e := range entries {
				views = append(views, vmView(e))
			}

			return a.print(views, func(w io.Writer) {
				_, _ = fmt.Fprintln(w, "NAME\tUUID")
				for _, v := range views {
					_, _ = fmt.Fprintf(w, "%s\t%s\n", v.Name, v.UUID)
				}
			})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <vm>",
		Short: "Show the configuration and state of a VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view, err := newInfoView(cmd, vm)
			if err != nil {
				return err
			}

			return a.print(view, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "Name:\t%s\n", view.Name)
				_, _ = fmt.Fprintf(w, "UUID:\t%s\n", view.UUID)
				_, _ = fmt.Fprintf(w, "Guest OS:\t%s\n", view.OSType)
				_, _ = fmt.Fprintf(w, "CPUs:\t%d\n", view.CPUs)
				_, _ = fmt.Fprintf(w, "Memory:\t%s\n", view.Memory)
				_, _ = fmt.Fprintf(w, "State:\t%s\n", view.State)
				for _, nic := range view.NICs {
					_, _ = fmt.Fprintf(w, "NIC %d:\t%s (cable connected: %t)\n",
						nic.Index, nic.Attachment, nic.CableConnected)
				}
			})
		},
	}
}

func newInfoView(cmd *cobra.Command, vm *vboxmanage.VirtualMachine) (infoView, error) {
	report, err := vm.Report(cmd.Context())
	if err != nil {
		return infoView{}, err
	}

	view := infoView{
		Name:         vm.Name(),
		UUID:         vm.UUID(),
		PortForwards: newRuleViews(report.PortForwardRules()),
		Snapshots:    newSnapshotViews(report.Snapshots()),
	}

	if view.OSType, err = report.OSType(); err != nil {
		return infoView{}, err
	}
	if view.CPUs, err = report.Core(); err != nil {
		return infoView{}, err
	}
	if view.Memory, err = report.Memory(); err != nil {
		return infoView{}, err
	}
	if view.State, err = report.Status(); err != nil {
		return infoView{}, err
	}
	if view.Running, err = report.IsRunning(); err != nil {
		return infoView{}, err
	}

	nics := report.NICs()
	for _, i := range slices.Sorted(maps.Keys(nics)) {
		nic := nics[i]
		view.NICs = append(view.NICs, nicView{
			Index:          nic.Index,
			Attachment:     nic.Attachment,
			CableConnected: nic.CableConnected,
		})
	}

	return view, nil
}

func (a *app) startCmd() *cobra.Command {
	var gui bool

	cmd := &cobra.Command{
		Use:   "start <vm>",
		Short: "Start a VM, headless unless --gui is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			mode := vboxmanage.StartHeadless
			if gui {
				mode = vboxmanage.StartGUI
			}

			return vm.Start(cmd.Context(), mode)
		},
	}

	cmd.Flags().BoolVar(&gui, "gui", false, "start with a GUI window")

	return cmd
}

func (a *app) acpiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acpi <vm>",
		Short: "Press the ACPI power button of a VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return vm.ACPIPowerButton(cmd.Context())
		},
	}
}

func (a *app) poweroffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poweroff <vm>",
		Short: "Power off a VM immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return vm.PowerOff(cmd.Context())
		},
	}
}

func (a *app) unregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <vm>",
		Short: "Unregister a VM and delete its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return vm.Unregister(cmd.Context())
		},
	}
}

func (a *app) cloneCmd() *cobra.Command {
	var opts vboxmanage.CloneOptions

	cmd := &cobra.Command{
		Use:   "clone <vm> <new-name>",
		Short: "Clone and register a VM, as a linked clone unless --full is set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			opts.Name = args[1]

			return vm.Clone(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "copy the disks instead of linking them")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "clone from this snapshot")

	return cmd
}
