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

package vboxmanage_test

import (
	"strings"
	"testing"

	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// showVMInfo is trimmed output of "VBoxManage showvminfo" for a VM with two
// snapshots, a NAT interface forwarding ssh and a disconnected bridged
// interface.
const showVMInfo = `Name:                        dev-box
Groups:                      /
Guest OS:                    Ubuntu (64-bit)
UUID:                        5a1f7c3e-2b4d-4e6f-8a9b-0c1d2e3f4a5b
Config file:                 /home/user/VirtualBox VMs/dev-box/dev-box.vbox
Memory size:                 2048MB
Page Fusion:                 disabled
VRAM size:                   16MB
Number of CPUs:              2
State:                       running (since 2020-01-01T00:00:00.000000000)
NIC 1:                       MAC: 080027A1B2C3, Attachment: NAT, Cable connected: on, Trace: off (file: none), Type: 82540EM, Reported speed: 0 Mbps, Boot priority: 0, Promisc Policy: deny, Bandwidth group: none
NIC 1 Settings:  MTU: 0, Socket (send: 64, receive: 64), TCP Window (send:64, receive: 64)
NIC 1 Rule(0):   name = ssh, protocol = tcp, host ip = 127.0.0.1, host port = 2222, guest ip = , guest port = 22
NIC 1 Rule(1):   name = web, protocol = tcp, host ip = , host port = 8080, guest ip = , guest port = 80
NIC 2:                       MAC: 080027D4E5F6, Attachment: Bridged Interface 'en0', Cable connected: off, Trace: off (file: none), Type: 82540EM
NIC 2 Rule(0):   name = ignored, protocol = udp, host ip = , host port = 5353, guest ip = , guest port = 53
NIC 3:                       disabled
NIC 4:                       disabled

Snapshots:

   Name: base (UUID: 11111111-1111-4111-8111-111111111111)
   Description:
fresh install
      Name: provisioned (UUID: 22222222-2222-4222-8222-222222222222) *
`

func parseFixture(t *testing.T) *vboxmanage.Report {
	t.Helper()

	r, err := vboxmanage.ParseReport(strings.Split(showVMInfo, "\n"))
	require.NoError(t, err)

	return r
}

func TestParseReport_Scalars(t *testing.T) {
	r := parseFixture(t)

	name, err := r.Name()
	require.NoError(t, err)
	assert.Equal(t, "dev-box", name)

	id, err := r.UUID()
	require.NoError(t, err)
	assert.Equal(t, "5a1f7c3e-2b4d-4e6f-8a9b-0c1d2e3f4a5b", id)

	os, err := r.OSType()
	require.NoError(t, err)
	assert.Equal(t, "Ubuntu (64-bit)", os)

	core, err := r.Core()
	require.NoError(t, err)
	assert.Equal(t, 2, core)

	mem, err := r.Memory()
	require.NoError(t, err)
	assert.Equal(t, "2048MB", mem)

	mb, err := r.MemoryMB()
	require.NoError(t, err)
	assert.Equal(t, 2048, mb)

	running, err := r.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)
}

func TestParseReport_Core(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		expected    int
		expectedErr error
	}{
		{
			name:     "single line",
			lines:    []string{"Number of CPUs: 4"},
			expected: 4,
		},
		{
			name:     "first matching line wins",
			lines:    []string{"Number of CPUs:   8", "Number of CPUs: 1"},
			expected: 8,
		},
		{
			name:        "missing line",
			lines:       []string{"Memory size: 1024MB"},
			expectedErr: vboxmanage.ErrParseReport,
		},
		{
			name:        "not a number",
			lines:       []string{"Number of CPUs: two"},
			expectedErr: vboxmanage.ErrParseReport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := vboxmanage.ParseReport(tt.lines)
			require.NoError(t, err)

			actual, err := r.Core()
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Contains(t, err.Error(), "core")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestParseReport_Status(t *testing.T) {
	tests := []struct {
		name            string
		line            string
		expectedStatus  string
		expectedRunning bool
	}{
		{
			name:            "running with since suffix",
			line:            "State: running (since 2020-01-01T00:00:00)",
			expectedStatus:  "running (since 2020-01-01T00:00:00)",
			expectedRunning: true,
		},
		{
			name:            "powered off",
			line:            "State:           powered off (since 2020-01-01T00:00:00.000000000)",
			expectedStatus:  "powered off (since 2020-01-01T00:00:00.000000000)",
			expectedRunning: false,
		},
		{
			name:            "saved",
			line:            "State: saved",
			expectedStatus:  "saved",
			expectedRunning: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := vboxmanage.ParseReport([]string{tt.line})
			require.NoError(t, err)

			status, err := r.Status()
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, status)

			running, err := r.IsRunning()
			require.NoError(t, err)
			assert.Equal(t, tt.expectedRunning, running)
		})
	}

	t.Run("missing state", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{"Name: foo"})
		require.NoError(t, err)

		_, err = r.IsRunning()
		assert.ErrorIs(t, err, vboxmanage.ErrParseReport)
	})
}

func TestParseReport_NICs(t *testing.T) {
	r := parseFixture(t)

	nics := r.NICs()
	require.Len(t, nics, 2)
	assert.NotContains(t, nics, 3)
	assert.NotContains(t, nics, 4)

	nat := nics[1]
	assert.Equal(t, 1, nat.Index)
	assert.Equal(t, vboxmanage.AttachmentNAT, nat.Attachment)
	assert.True(t, nat.CableConnected)
	assert.True(t, nat.IsNAT())
	assert.Equal(t, "080027A1B2C3", nat.Properties["MAC"])
	assert.Equal(t, "off (file: none)", nat.Properties["Trace"])

	bridged := nics[2]
	assert.Equal(t, "Bridged Interface 'en0'", bridged.Attachment)
	assert.False(t, bridged.CableConnected)
	assert.False(t, bridged.IsNAT())

	connected := r.ConnectedNICs()
	require.Len(t, connected, 1)
	assert.Contains(t, connected, 1)

	assert.Equal(t, []int{1}, r.NATIndices())

	t.Run("returned maps are copies", func(t *testing.T) {
		nics := r.NICs()
		nics[1].Properties["MAC"] = "changed"
		delete(nics, 2)

		assert.Equal(t, "080027A1B2C3", r.NICs()[1].Properties["MAC"])
		assert.Len(t, r.NICs(), 2)
	})
}

func TestParseReport_NICDisabled(t *testing.T) {
	r, err := vboxmanage.ParseReport([]string{
		"NIC 1: disabled",
		"NIC 2:     disabled",
	})
	require.NoError(t, err)

	assert.Empty(t, r.NICs())
}

func TestParseReport_PortForwardRules(t *testing.T) {
	t.Run("fixture", func(t *testing.T) {
		r := parseFixture(t)

		rules := r.PortForwardRules()
		require.Len(t, rules, 2, "rules of the bridged NIC must be dropped")

		assert.Equal(t, vboxmanage.PortForwardRule{
			NIC:       1,
			Index:     0,
			Name:      "ssh",
			Protocol:  vboxmanage.ProtocolTCP,
			HostIP:    "127.0.0.1",
			HostPort:  2222,
			GuestIP:   "",
			GuestPort: 22,
		}, rules[0])
		assert.Equal(t, "web", rules[1].Name)
		assert.Equal(t, 8080, rules[1].HostPort)
		assert.Equal(t, 80, rules[1].GuestPort)
	})

	t.Run("compact cells", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{
			"NIC 1: MAC: 080027, Attachment: NAT, Cable connected: on",
			"NIC 1 Rule(0): name=ssh,protocol=tcp,host ip=127.0.0.1,host port=2222,guest ip=,guest port=22",
		})
		require.NoError(t, err)

		rules := r.PortForwardRules()
		require.Len(t, rules, 1)
		assert.Equal(t, 2222, rules[0].HostPort)
		assert.Equal(t, "127.0.0.1", rules[0].HostIP)
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := vboxmanage.ParseReport([]string{
			"NIC 1 Rule(0): name=ssh,protocol=tcp,host ip=,host port=abc,guest ip=,guest port=22",
		})
		assert.ErrorIs(t, err, vboxmanage.ErrParseReport)
	})
}

func TestParseReport_SSHRule(t *testing.T) {
	nat := "NIC 1: MAC: 080027, Attachment: NAT, Cable connected: on"
	ssh := func(hostPort string) string {
		return "NIC 1 Rule(0): name=ssh,protocol=tcp,host ip=,host port=" + hostPort + ",guest ip=,guest port=22"
	}

	t.Run("none", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{
			nat,
			"NIC 1 Rule(0): name=ssh,protocol=tcp,host ip=,host port=2222,guest ip=,guest port=2022",
		})
		require.NoError(t, err)

		rule, err := r.SSHRule()
		assert.NoError(t, err)
		assert.Nil(t, rule)
	})

	t.Run("one", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{nat, ssh("2222")})
		require.NoError(t, err)

		first, err := r.SSHRule()
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, 2222, first.HostPort)

		second, err := r.SSHRule()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("ambiguous", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{nat, ssh("2222"), ssh("2223")})
		require.NoError(t, err)

		rule, err := r.SSHRule()
		assert.ErrorIs(t, err, vboxmanage.ErrAmbiguousRule)
		assert.Nil(t, rule)
	})
}

func TestParseReport_Snapshots(t *testing.T) {
	r := parseFixture(t)

	assert.Equal(t, []vboxmanage.Snapshot{
		{
			Name:    "base",
			UUID:    "11111111-1111-4111-8111-111111111111",
			Depth:   1,
			Current: false,
		},
		{
			Name:    "provisioned",
			UUID:    "22222222-2222-4222-8222-222222222222",
			Depth:   2,
			Current: true,
		},
	}, r.Snapshots())

	current := r.CurrentSnapshot()
	require.NotNil(t, current)
	assert.Equal(t, "provisioned", current.Name)

	t.Run("no snapshots", func(t *testing.T) {
		r, err := vboxmanage.ParseReport([]string{"Snapshots: none"})
		require.NoError(t, err)

		assert.Empty(t, r.Snapshots())
		assert.Nil(t, r.CurrentSnapshot())
	})
}

func TestParseReport_CRLF(t *testing.T) {
	r, err := vboxmanage.ParseReport([]string{"Number of CPUs: 3\r\n", "State: running\r"})
	require.NoError(t, err)

	core, err := r.Core()
	require.NoError(t, err)
	assert.Equal(t, 3, core)

	running, err := r.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)
}
