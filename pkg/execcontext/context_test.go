//go:build unit

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

package execcontext_test

import (
	"context"
	"testing"

	"github.com/alexandremahdhaoui/vboxctl/pkg/execcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Copies(t *testing.T) {
	envs := map[string]string{"A": "1"}
	prepend := []string{"sudo", "-n"}

	execCtx := execcontext.New(envs, prepend)

	gotEnvs := execCtx.Envs()
	gotEnvs["B"] = "2"
	gotPrepend := execCtx.PrependCmd()
	gotPrepend[0] = "doas"

	assert.Equal(t, map[string]string{"A": "1"}, execCtx.Envs())
	assert.Equal(t, []string{"sudo", "-n"}, execCtx.PrependCmd())
}

func TestArgv(t *testing.T) {
	tests := []struct {
		name     string
		execCtx  execcontext.Context
		expected []string
	}{
		{
			name:     "empty context",
			execCtx:  execcontext.Empty(),
			expected: []string{"VBoxManage", "list", "vms"},
		},
		{
			name:     "with sudo",
			execCtx:  execcontext.New(nil, []string{"sudo", "-u", "vbox"}),
			expected: []string{"sudo", "-u", "vbox", "VBoxManage", "list", "vms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, execcontext.Argv(tt.execCtx, "VBoxManage", "list", "vms"))
		})
	}
}

func TestCommandContext(t *testing.T) {
	t.Run("prepends command", func(t *testing.T) {
		execCtx := execcontext.New(nil, []string{"env"})
		cmd := execcontext.CommandContext(context.Background(), execCtx, "VBoxManage", "list", "vms")

		assert.Equal(t, []string{"env", "VBoxManage", "list", "vms"}, cmd.Args)
		assert.Nil(t, cmd.Env)
	})

	t.Run("extends environment", func(t *testing.T) {
		execCtx := execcontext.New(map[string]string{"VBOX_USER_HOME": "/tmp/vbox"}, nil)
		cmd := execcontext.CommandContext(context.Background(), execCtx, "VBoxManage")

		require.NotEmpty(t, cmd.Env)
		assert.Equal(t, "VBOX_USER_HOME=/tmp/vbox", cmd.Env[len(cmd.Env)-1])
	})
}

func TestFormatCmd(t *testing.T) {
	execCtx := execcontext.New(map[string]string{"LANG": "C"}, []string{"sudo"})

	out := execcontext.FormatCmd(execCtx, "VBoxManage", "snapshot", "my vm", "take", "s1")

	assert.Equal(t, `LANG="C" "sudo" "VBoxManage" "snapshot" "my vm" "take" "s1"`, out)
}
