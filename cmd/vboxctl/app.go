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
	"fmt"
	"io"
	"time"

	"github.com/alexandremahdhaoui/vboxctl/internal/util/logging"
	"github.com/alexandremahdhaoui/vboxctl/pkg/execcontext"
	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// app holds the state shared by every subcommand. It is initialized by the
// root command's PersistentPreRunE, once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	flags struct {
		configPath      string
		binary          string
		sudo            bool
		logLevel        string
		dev             bool
		timeout         time.Duration
		metricsTextfile string
		output          string
	}

	config     *Config
	logger     logr.Logger
	syncLogger func()

	metricsRegistry *prometheus.Registry
	runner          vboxmanage.Runner
	registry        *vboxmanage.Registry
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		logger:     logr.Discard(),
		syncLogger: func() {},
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           Name,
		Short:         "Manage VirtualBox VMs through VBoxManage",
		Version:       fmt.Sprintf("%s (%s) %s", Version, CommitSHA, BuildTimestamp),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Flags())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.flags.configPath, "config", "", fmt.Sprintf("config file (default $%s)", ConfigPathEnvKey))
	flags.StringVar(&a.flags.binary, "vboxmanage", vboxmanage.DefaultBinary, "path to the VBoxManage binary")
	flags.BoolVar(&a.flags.sudo, "sudo", false, "run VBoxManage through sudo")
	flags.StringVar(&a.flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&a.flags.dev, "dev", false, "human-readable logs")
	flags.DurationVar(&a.flags.timeout, "timeout", 0, "timeout of each VBoxManage invocation (0 means none)")
	flags.StringVar(&a.flags.metricsTextfile, "metrics-textfile", "", "write prometheus metrics to this file on exit")
	flags.StringVarP(&a.flags.output, "output", "o", outputTable, "output format: table, json or yaml")

	cmd.AddCommand(
		a.listCmd(),
		a.infoCmd(),
		a.startCmd(),
		a.acpiCmd(),
		a.poweroffCmd(),
		a.unregisterCmd(),
		a.snapshotCmd(),
		a.cloneCmd(),
		a.natpfCmd(),
		a.sshCmd(),
	)

	return cmd
}

// setup loads the config file, applies the flags set on the command line
// over it and builds the logger, the runner and the registry.
func (a *app) setup(flags *pflag.FlagSet) error {
	config, err := loadConfig(a.flags.configPath)
	if err != nil {
		return err
	}

	applyFlags(flags, a, config)

	if err := validateOutput(a.flags.output); err != nil {
		return err
	}

	level, err := logging.ParseLevel(config.Logging.Level)
	if err != nil {
		return err
	}

	a.logger, a.syncLogger, err = logging.Setup(logging.Options{
		Development: config.Logging.Development,
		Level:       level,
	})
	if err != nil {
		return err
	}

	timeout, err := config.VBoxManage.timeout()
	if err != nil {
		return err
	}

	a.metricsRegistry = prometheus.NewRegistry()
	metrics, err := vboxmanage.NewMetrics(a.metricsRegistry)
	if err != nil {
		return err
	}

	var prependCmd []string
	if config.VBoxManage.Sudo {
		prependCmd = []string{"sudo"}
	}

	a.runner = vboxmanage.NewRunner(
		execcontext.New(config.VBoxManage.Envs, prependCmd),
		vboxmanage.WithBinary(config.VBoxManage.Binary),
		vboxmanage.WithLogger(a.logger.WithName("vboxmanage")),
		vboxmanage.WithMetrics(metrics),
		vboxmanage.WithTimeout(timeout),
		vboxmanage.WithStderr(a.stderr),
	)
	a.registry = vboxmanage.NewRegistry(a.runner)
	a.config = config

	return nil
}

// applyFlags overrides config with the flags explicitly set.
func applyFlags(flags *pflag.FlagSet, a *app, config *Config) {
	if flags.Changed("vboxmanage") {
		config.VBoxManage.Binary = a.flags.binary
	}
	if flags.Changed("sudo") {
		config.VBoxManage.Sudo = a.flags.sudo
	}
	if flags.Changed("timeout") {
		config.VBoxManage.Timeout = a.flags.timeout.String()
	}
	if flags.Changed("log-level") {
		config.Logging.Level = a.flags.logLevel
	}
	if flags.Changed("dev") {
		config.Logging.Development = a.flags.dev
	}
	if flags.Changed("metrics-textfile") {
		config.MetricsTextfile = a.flags.metricsTextfile
	}
}

// close writes the metrics textfile, if any, and flushes the logger.
func (a *app) close() {
	defer a.syncLogger()

	if a.config == nil || a.config.MetricsTextfile == "" {
		return
	}

	if err := writeMetrics(a.config.MetricsTextfile, a.metricsRegistry); err != nil {
		a.logger.Error(err, "writing metrics textfile", "path", a.config.MetricsTextfile)
	}
}

// vm resolves key into a VirtualMachine.
func (a *app) vm(ctx context.Context, key string) (*vboxmanage.VirtualMachine, error) {
	return vboxmanage.NewVirtualMachine(ctx, a.runner, a.registry, key,
		vboxmanage.WithVMLogger(a.logger.WithName("vm")))
}
