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
	"io"

	"github.com/spf13/cobra"
)

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage the snapshots of a VM",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <vm>",
			Short: "List the snapshot tree",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				vm, err := a.vm(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				snapshots, err := vm.Snapshots(cmd.Context())
				if err != nil {
					return err
				}

				views := newSnapshotViews(snapshots)

				return a.print(views, func(w io.Writer) { printSnapshots(w, views) })
			},
		},
		&cobra.Command{
			Use:   "take <vm> <name>",
			Short: "Take a snapshot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				vm, err := a.vm(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return vm.TakeSnapshot(cmd.Context(), args[1])
			},
		},
		&cobra.Command{
			Use:   "delete <vm> <name>",
			Short: "Delete a snapshot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				vm, err := a.vm(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return vm.DeleteSnapshot(cmd.Context(), args[1])
			},
		},
		&cobra.Command{
			Use:   "restore <vm> [name]",
			Short: "Restore a snapshot, or the current one if no name is given",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				vm, err := a.vm(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				name := ""
				if len(args) == 2 {
					name = args[1]
				}

				return vm.RestoreSnapshot(cmd.Context(), name)
			},
		},
	)

	return cmd
}
