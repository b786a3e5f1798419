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
	"fmt"
	"strconv"
	"strings"
)

const (
	// AttachmentNAT is the attachment type of NAT network interfaces, as
	// printed by showvminfo.
	AttachmentNAT = "NAT"

	// SSHRuleName is the name of the port forward rule used to reach the
	// guest's ssh server.
	SSHRuleName = "ssh"
	// SSHGuestPort is the guest port of the ssh rule.
	SSHGuestPort = 22

	// DefaultSSHHostIP is used by SetSSHPortForward when no host IP is given.
	DefaultSSHHostIP = "127.0.0.1"
)

// Entry is a registered VM as listed by "VBoxManage list vms".
type Entry struct {
	Name string
	UUID string
}

// NetworkInterface is a NIC of a VM, parsed from a "NIC <n>:" line.
type NetworkInterface struct {
	Index          int
	Attachment     string
	CableConnected bool
	// Properties holds every "key: value" cell of the line.
	Properties map[string]string
}

// IsNAT returns true if the interface is attached to NAT.
func (n NetworkInterface) IsNAT() bool {
	return n.Attachment == AttachmentNAT
}

// Protocol of a port forward rule.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// PortForwardRule is a NAT port forward rule of a network interface.
type PortForwardRule struct {
	NIC       int // index of the NAT interface
	Index     int // position in "NIC <n> Rule(<i>)"; informational only
	Name      string
	Protocol  Protocol
	HostIP    string
	HostPort  int
	GuestIP   string
	GuestPort int
}

// Validate checks that the rule can be expressed as a --natpf argument.
func (r PortForwardRule) Validate() error {
	if r.Name == "" {
		return ErrRuleNameRequired
	}
	if r.NIC < 1 {
		return fmt.Errorf("%w: NIC index must be >= 1, got %d", ErrInvalidRule, r.NIC)
	}
	if r.Protocol != ProtocolTCP && r.Protocol != ProtocolUDP {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidRule, r.Protocol)
	}
	for _, field := range []string{r.Name, r.HostIP, r.GuestIP} {
		if strings.Contains(field, ",") {
			return fmt.Errorf("%w: %q must not contain a comma", ErrInvalidRule, field)
		}
	}
	if !validPort(r.HostPort) || !validPort(r.GuestPort) {
		return fmt.Errorf("%w: ports must be in [1, 65535]", ErrInvalidRule)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// natpfFlag returns the "--natpf<n>" flag addressing the rule's NIC.
func (r PortForwardRule) natpfFlag() string {
	return fmt.Sprintf("--natpf%d", r.NIC)
}

// natpfValue returns "<name>,<proto>,<hostip>,<hostport>,<guestip>,<guestport>".
func (r PortForwardRule) natpfValue() string {
	return strings.Join([]string{
		r.Name,
		string(r.Protocol),
		r.HostIP,
		strconv.Itoa(r.HostPort),
		r.GuestIP,
		strconv.Itoa(r.GuestPort),
	}, ",")
}

// IsSSH returns true if the rule is the ssh rule: named "ssh" and forwarding
// to guest port 22.
func (r PortForwardRule) IsSSH() bool {
	return r.Name == SSHRuleName && r.GuestPort == SSHGuestPort
}

// Snapshot is a node of the snapshot tree of a VM.
type Snapshot struct {
	Name string
	UUID string
	// Depth is the indentation width of the line divided by 3.
	Depth   int
	Current bool
}

// StartMode selects the frontend used by "VBoxManage startvm".
type StartMode string

const (
	StartHeadless StartMode = "headless"
	StartGUI      StartMode = "gui"
)

// CloneOptions configures VirtualMachine.Clone.
type CloneOptions struct {
	// Name of the new VM.
	Name string
	// Full copies the disks. Otherwise a linked clone is created.
	Full bool
	// Snapshot pins the clone to a snapshot of the source VM. Optional.
	Snapshot string
}
