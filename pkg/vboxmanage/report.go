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
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// snapshotIndentWidth is the number of spaces showvminfo indents each level
// of the snapshot tree with.
const snapshotIndentWidth = 3

const (
	fieldName      = "name"
	fieldOS        = "os"
	fieldUUID      = "uuid"
	fieldMemory    = "memory"
	fieldCore      = "core"
	fieldStatus    = "status"
	fieldNICs      = "nics"
	fieldPortFwd   = "port_forward"
	fieldSnapshots = "snap_list"
)

// Report is the parsed output of "VBoxManage showvminfo".
type Report struct {
	scalars map[string]string
	core    int

	nics      map[int]NetworkInterface
	rules     []PortForwardRule
	snapshots []Snapshot
}

// ------------------------------------------------------ PARSER ---------------------------------------------------- //

// lineParser handles one type of report line.
type lineParser struct {
	pattern *regexp.Regexp
	apply   func(r *Report, m []string) error
}

// lineParsers is ordered: each line is handed to the first parser whose
// pattern matches it.
var lineParsers = []lineParser{
	{
		pattern: regexp.MustCompile(`^NIC (\d+) Rule\((\d+)\):\s+(.*)$`),
		apply:   (*Report).applyRule,
	},
	{
		pattern: regexp.MustCompile(`^NIC (\d+):\s+(.*)$`),
		apply:   (*Report).applyNIC,
	},
	{
		pattern: regexp.MustCompile(`^(\s+)Name:\s+(.+?)\s+\(UUID:\s+([0-9a-fA-F-]+)\)(\s+\*)?\s*$`),
		apply:   (*Report).applySnapshot,
	},
	{
		pattern: regexp.MustCompile(`^Number of CPUs:\s+(\d+)$`),
		apply:   (*Report).applyCore,
	},
	scalar(fieldName, `^Name:\s+(.+)$`),
	scalar(fieldOS, `^Guest OS:\s+(.+)$`),
	scalar(fieldUUID, `^UUID:\s+(\S+)$`),
	scalar(fieldMemory, `^Memory size:?\s+(\w+)`),
	scalar(fieldStatus, `^State:\s*(.*)$`),
}

// scalar returns a parser storing the first capture group of pattern as
// field. Only the first matching line is kept.
func scalar(field, pattern string) lineParser {
	return lineParser{
		pattern: regexp.MustCompile(pattern),
		apply: func(r *Report, m []string) error {
			if _, ok := r.scalars[field]; !ok {
				r.scalars[field] = strings.TrimSpace(m[1])
			}
			return nil
		},
	}
}

// ParseReport parses the lines of "VBoxManage showvminfo" in a single pass.
// Missing fields are reported by the accessors, not by ParseReport.
func ParseReport(lines []string) (*Report, error) {
	r := &Report{
		scalars: make(map[string]string),
		nics:    make(map[int]NetworkInterface),
	}

	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		for _, p := range lineParsers {
			m := p.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if err := p.apply(r, m); err != nil {
				return nil, err
			}
			break
		}
	}

	return r, nil
}

func (r *Report) applyCore(m []string) error {
	if _, ok := r.scalars[fieldCore]; ok {
		return nil
	}

	core, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParseReport, fieldCore, err)
	}

	r.scalars[fieldCore] = m[1]
	r.core = core

	return nil
}

func (r *Report) applyNIC(m []string) error {
	body := strings.TrimSpace(m[2])
	if body == "disabled" {
		return nil
	}

	index, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParseReport, fieldNICs, err)
	}

	props := splitCells(body, ":")
	r.nics[index] = NetworkInterface{
		Index:          index,
		Attachment:     props["Attachment"],
		CableConnected: props["Cable connected"] == "on",
		Properties:     props,
	}

	return nil
}

func (r *Report) applyRule(m []string) error {
	nic, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParseReport, fieldPortFwd, err)
	}

	index, err := strconv.Atoi(m[2])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParseReport, fieldPortFwd, err)
	}

	cells := splitCells(m[3], "=")

	hostPort, err := parsePort(cells["host port"])
	if err != nil {
		return fmt.Errorf("%w: %s: host port: %v", ErrParseReport, fieldPortFwd, err)
	}

	guestPort, err := parsePort(cells["guest port"])
	if err != nil {
		return fmt.Errorf("%w: %s: guest port: %v", ErrParseReport, fieldPortFwd, err)
	}

	r.rules = append(r.rules, PortForwardRule{
		NIC:       nic,
		Index:     index,
		Name:      cells["name"],
		Protocol:  Protocol(strings.ToLower(cells["protocol"])),
		HostIP:    cells["host ip"],
		HostPort:  hostPort,
		GuestIP:   cells["guest ip"],
		GuestPort: guestPort,
	})

	return nil
}

func (r *Report) applySnapshot(m []string) error {
	r.snapshots = append(r.snapshots, Snapshot{
		Name:    m[2],
		UUID:    m[3],
		Depth:   len(m[1]) / snapshotIndentWidth,
		Current: m[4] != "",
	})
	return nil
}

// splitCells splits a comma separated list of cells, each cell being split
// once on sep into a trimmed key/value pair. A cell without sep maps to "".
func splitCells(csv, sep string) map[string]string {
	out := make(map[string]string)
	for _, cell := range strings.Split(csv, ",") {
		k, v, _ := strings.Cut(cell, sep)
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ----------------------------------------------------- ACCESSORS -------------------------------------------------- //

func (r *Report) scalar(field string) (string, error) {
	v, ok := r.scalars[field]
	if !ok {
		return "", parseError(field)
	}
	return v, nil
}

// Name returns the VM name.
func (r *Report) Name() (string, error) {
	return r.scalar(fieldName)
}

// UUID returns the VM UUID.
func (r *Report) UUID() (string, error) {
	return r.scalar(fieldUUID)
}

// OSType returns the guest OS, e.g. "Ubuntu (64-bit)".
func (r *Report) OSType() (string, error) {
	return r.scalar(fieldOS)
}

// Core returns the number of CPUs.
func (r *Report) Core() (int, error) {
	if _, err := r.scalar(fieldCore); err != nil {
		return 0, err
	}
	return r.core, nil
}

// Memory returns the memory size as printed, e.g. "1024MB".
func (r *Report) Memory() (string, error) {
	return r.scalar(fieldMemory)
}

// MemoryMB returns the leading digits of the memory size.
func (r *Report) MemoryMB() (int, error) {
	mem, err := r.Memory()
	if err != nil {
		return 0, err
	}

	digits := strings.TrimRightFunc(mem, func(c rune) bool { return c < '0' || c > '9' })
	mb, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q", ErrParseReport, fieldMemory, mem)
	}

	return mb, nil
}

// Status returns the text after "State:", e.g. "running (since ...)".
func (r *Report) Status() (string, error) {
	return r.scalar(fieldStatus)
}

// IsRunning returns true if the status starts with "running".
func (r *Report) IsRunning() (bool, error) {
	status, err := r.Status()
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(status, "running"), nil
}

// NICs returns the enabled network interfaces keyed by index.
func (r *Report) NICs() map[int]NetworkInterface {
	out := make(map[int]NetworkInterface, len(r.nics))
	for k, v := range r.nics {
		v.Properties = maps.Clone(v.Properties)
		out[k] = v
	}
	return out
}

// ConnectedNICs returns the enabled network interfaces whose cable is
// connected.
func (r *Report) ConnectedNICs() map[int]NetworkInterface {
	out := r.NICs()
	maps.DeleteFunc(out, func(_ int, n NetworkInterface) bool {
		return !n.CableConnected
	})
	return out
}

// NATIndices returns the sorted indices of the NAT attached interfaces.
func (r *Report) NATIndices() []int {
	var out []int
	for i, n := range r.nics {
		if n.IsNAT() {
			out = append(out, i)
		}
	}
	slices.Sort(out)
	return out
}

// PortForwardRules returns the rules of NAT attached interfaces, in report
// order.
func (r *Report) PortForwardRules() []PortForwardRule {
	nat := r.NATIndices()

	var out []PortForwardRule
	for _, rule := range r.rules {
		if slices.Contains(nat, rule.NIC) {
			out = append(out, rule)
		}
	}
	return out
}

// SSHRule returns the unique ssh port forward rule, or nil when ssh is not
// forwarded.
func (r *Report) SSHRule() (*PortForwardRule, error) {
	var found []PortForwardRule
	for _, rule := range r.PortForwardRules() {
		if rule.IsSSH() {
			found = append(found, rule)
		}
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: found %d", ErrAmbiguousRule, len(found))
	}
}

// Snapshots returns the snapshot tree in report order (depth-first).
func (r *Report) Snapshots() []Snapshot {
	return slices.Clone(r.snapshots)
}

// CurrentSnapshot returns the current snapshot, or nil if the VM has none.
func (r *Report) CurrentSnapshot() *Snapshot {
	for _, s := range r.snapshots {
		if s.Current {
			return &s
		}
	}
	return nil
}
