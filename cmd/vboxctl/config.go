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
	"os"
	"time"

	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"sigs.k8s.io/yaml"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path.
	ConfigPathEnvKey = "VBOXCTL_CONFIG_PATH"
)

// loadConfig loads the configuration from path, or from the file specified in
// the VBOXCTL_CONFIG_PATH environment variable if path is empty. Without
// either, the default configuration is returned.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path == "" {
		path = os.Getenv(ConfigPathEnvKey)
	}
	if path == "" {
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Parse YAML (uses json tags)
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if _, err := config.VBoxManage.timeout(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		VBoxManage: VBoxManageConfig{
			Binary: vboxmanage.DefaultBinary,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		SSH: SSHConfig{
			HostIP: vboxmanage.DefaultSSHHostIP,
		},
	}
}

// Config is used to configure vboxctl.
//
// Every field can be overridden by the matching global flag.
type Config struct {
	// VBoxManage configures how VBoxManage is executed.
	VBoxManage VBoxManageConfig `json:"vboxmanage"`

	// Logging configures the logger.
	Logging LoggingConfig `json:"logging"`

	// SSH holds the defaults of the "ssh" subcommands.
	SSH SSHConfig `json:"ssh"`

	// MetricsTextfile is the path where the prometheus metrics are written
	// when vboxctl exits, e.g. for the node_exporter textfile collector.
	MetricsTextfile string `json:"metricsTextfile"`
}

type VBoxManageConfig struct {
	// Binary is the path to VBoxManage.
	Binary string `json:"binary"`
	// Sudo runs VBoxManage through sudo.
	Sudo bool `json:"sudo"`
	// Envs are added to the environment of VBoxManage, e.g. VBOX_USER_HOME.
	Envs map[string]string `json:"envs"`
	// Timeout bounds each invocation, e.g. "30s". Empty means no timeout.
	Timeout string `json:"timeout"`
}

func (c VBoxManageConfig) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing vboxmanage.timeout: %w", err)
	}

	return d, nil
}

type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Development enables human-readable logs.
	Development bool `json:"development"`
}

type SSHConfig struct {
	// User is the remote user of "ssh exec".
	User string `json:"user"`
	// PrivateKeyPath is the private key of "ssh exec".
	PrivateKeyPath string `json:"privateKeyPath"`
	// KnownHostsPath enables host key verification.
	KnownHostsPath string `json:"knownHostsPath"`
	// HostIP is the host address of the rule written by "ssh set".
	HostIP string `json:"hostIP"`
}
