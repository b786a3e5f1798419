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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	internalssh "github.com/alexandremahdhaoui/vboxctl/internal/util/ssh"
	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"github.com/spf13/cobra"
)

var (
	errNoSSHRule       = errors.New("VM has no ssh port forward rule")
	errSSHUserRequired = errors.New("ssh user is required")
	errSSHKeyRequired  = errors.New("ssh private key is required")
	errSSHPortRequired = errors.New("host port must be in [1, 65535]")
	errSSHCmdRequired  = errors.New("remote command is required")
)

const unspecifiedHostIPv4 = "0.0.0.0"

func (a *app) sshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssh",
		Short: "Manage and use the ssh port forward rule of a VM",
	}

	cmd.AddCommand(a.sshShowCmd(), a.sshSetCmd(), a.sshExecCmd())

	return cmd
}

func (a *app) sshShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <vm>",
		Short: "Show the ssh port forward rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rule, err := vm.SSHRule(cmd.Context())
			if err != nil {
				return err
			}
			if rule == nil {
				return fmt.Errorf("%w: %s", errNoSSHRule, vm.Name())
			}

			view := newRuleView(*rule)

			return a.print(view, func(w io.Writer) { printRules(w, []ruleView{view}) })
		},
	}
}

func (a *app) sshSetCmd() *cobra.Command {
	var (
		hostIP   string
		hostPort int
	)

	cmd := &cobra.Command{
		Use:   "set <vm>",
		Short: "Replace the ssh port forward rule with one forwarding host-ip:host-port to guest port 22",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hostPort < 1 || hostPort > 65535 {
				return errSSHPortRequired
			}

			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("host-ip") {
				hostIP = a.config.SSH.HostIP
			}

			return vm.SetSSHPortForward(cmd.Context(), hostIP, hostPort)
		},
	}

	cmd.Flags().StringVar(&hostIP, "host-ip", vboxmanage.DefaultSSHHostIP, "host address of the rule")
	cmd.Flags().IntVar(&hostPort, "host-port", 0, "host port of the rule")
	_ = cmd.MarkFlagRequired("host-port")

	return cmd
}

func (a *app) sshExecCmd() *cobra.Command {
	var (
		user       string
		keyPath    string
		knownHosts string
		wait       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec <vm> -- <command> [args...]",
		Short: "Run a command on the guest through its ssh port forward rule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return errSSHCmdRequired
			}

			flags := cmd.Flags()
			if !flags.Changed("user") {
				user = a.config.SSH.User
			}
			if !flags.Changed("key") {
				keyPath = a.config.SSH.PrivateKeyPath
			}
			if !flags.Changed("known-hosts") {
				knownHosts = a.config.SSH.KnownHostsPath
			}

			if user == "" {
				return errSSHUserRequired
			}
			if keyPath == "" {
				return errSSHKeyRequired
			}

			vm, err := a.vm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			client, err := a.sshClient(cmd.Context(), vm, user, keyPath, knownHosts)
			if err != nil {
				return err
			}

			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()

				if err := client.AwaitServer(ctx, time.Second); err != nil {
					return err
				}
			}

			stdout, stderr, err := client.Run(cmd.Context(), args[1:]...)
			_, _ = io.WriteString(a.stdout, stdout)
			_, _ = io.WriteString(a.stderr, stderr)

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&user, "user", "", "remote user (default ssh.user of the config)")
	flags.StringVar(&keyPath, "key", "", "private key (default ssh.privateKeyPath of the config)")
	flags.StringVar(&knownHosts, "known-hosts", "", "verify the host key against this known_hosts file")
	flags.DurationVar(&wait, "wait", 0, "wait up to this long for the ssh server")

	return cmd
}

// sshClient connects to the host side of the ssh rule of vm.
func (a *app) sshClient(
	ctx context.Context,
	vm *vboxmanage.VirtualMachine,
	user, keyPath, knownHosts string,
) (*internalssh.Client, error) {
	rule, err := vm.SSHRule(ctx)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: %s", errNoSSHRule, vm.Name())
	}

	host := rule.HostIP
	if host == "" || host == unspecifiedHostIPv4 {
		host = vboxmanage.DefaultSSHHostIP
	}

	opts := []internalssh.Option{internalssh.WithLogger(a.logger.WithName("ssh"))}
	if knownHosts != "" {
		opts = append(opts, internalssh.WithKnownHosts(knownHosts))
	}

	return internalssh.NewClient(host, rule.HostPort, user, keyPath, opts...)
}
