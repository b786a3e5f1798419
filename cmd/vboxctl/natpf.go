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

	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"github.com/spf13/cobra"
)

func (a *app) natpfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "natpf",
		Short: "Manage the NAT port forward rules of a VM",
	}

	cmd.AddCommand(a.natpfListCmd(), a.natpfAddCmd(), a.natpfDeleteCmd())

	return cmd
}

func (a *app) natpfListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <vm>",
		Short: "List the port forward rules of the NAT interfaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rules, err := vm.PortForwards(cmd.Context())
			if err != nil {
				return err
			}

			views := newRuleViews(rules)

			return a.print(views, func(w io.Writer) { printRules(w, views) })
		},
	}
}

func (a *app) natpfAddCmd() *cobra.Command {
	var (
		rule     vboxmanage.PortForwardRule
		protocol string
	)

	cmd := &cobra.Command{
		Use:   "add <vm>",
		Short: "Add a port forward rule to a NAT interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rule.Protocol = vboxmanage.Protocol(protocol)

			return vm.AddPortForward(cmd.Context(), rule)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&rule.NIC, "nic", 1, "index of the NAT interface")
	flags.StringVar(&rule.Name, "name", "", "name of the rule")
	flags.StringVar(&protocol, "protocol", string(vboxmanage.ProtocolTCP), "tcp or udp")
	flags.StringVar(&rule.HostIP, "host-ip", "", "host address, empty for every address")
	flags.IntVar(&rule.HostPort, "host-port", 0, "host port")
	flags.StringVar(&rule.GuestIP, "guest-ip", "", "guest address, empty for the DHCP address")
	flags.IntVar(&rule.GuestPort, "guest-port", 0, "guest port")

	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("host-port")
	_ = cmd.MarkFlagRequired("guest-port")

	return cmd
}

func (a *app) natpfDeleteCmd() *cobra.Command {
	var rule vboxmanage.PortForwardRule

	cmd := &cobra.Command{
		Use:   "delete <vm>",
		Short: "Delete a port forward rule from a NAT interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return vm.DeletePortForward(cmd.Context(), rule)
		},
	}

	cmd.Flags().IntVar(&rule.NIC, "nic", 1, "index of the NAT interface")
	cmd.Flags().StringVar(&rule.Name, "name", "", "name of the rule")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
