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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alexandremahdhaoui/vboxctl/pkg/vboxmanage"
	"sigs.k8s.io/yaml"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var errUnknownOutput = errors.New("unknown output format")

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownOutput, format)
	}
}

// print writes v as JSON or YAML, or calls table with a tabwriter.
func (a *app) print(v any, table func(w io.Writer)) error {
	switch a.flags.output {
	case outputJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, string(b))
		return err
	case outputYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(b)
		return err
	default:
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	}
}

// ------------------------------------------------------ VIEWS ----------------------------------------------------- //

type vmView struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type nicView struct {
	Index          int    `json:"index"`
	Attachment     string `json:"attachment"`
	CableConnected bool   `json:"cableConnected"`
}

type ruleView struct {
	NIC       int    `json:"nic"`
	Name      string `json:"name"`
	Protocol  string `json:"protocol"`
	HostIP    string `json:"hostIP"`
	HostPort  int    `json:"hostPort"`
	GuestIP   string `json:"guestIP"`
	GuestPort int    `json:"guestPort"`
}

type snapshotView struct {
	Name    string `json:"name"`
	UUID    string `json:"uuid"`
	Depth   int    `json:"depth"`
	Current bool   `json:"current"`
}

type infoView struct {
	Name         string         `json:"name"`
	UUID         string         `json:"uuid"`
	OSType       string         `json:"osType"`
	CPUs         int            `json:"cpus"`
	Memory       string         `json:"memory"`
	State        string         `json:"state"`
	Running      bool           `json:"running"`
	NICs         []nicView      `json:"nics"`
	PortForwards []ruleView     `json:"portForwards"`
	Snapshots    []snapshotView `json:"snapshots"`
}

func newRuleView(r vboxmanage.PortForwardRule) ruleView {
	return ruleView{
		NIC:       r.NIC,
		Name:      r.Name,
		Protocol:  string(r.Protocol),
		HostIP:    r.HostIP,
		HostPort:  r.HostPort,
		GuestIP:   r.GuestIP,
		GuestPort: r.GuestPort,
	}
}

func newRuleViews(rules []vboxmanage.PortForwardRule) []ruleView {
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		out = append(out, newRuleView(r))
	}
	return out
}

func newSnapshotViews(snapshots []vboxmanage.Snapshot) []snapshotView {
	out := make([]snapshotView, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, snapshotView(s))
	}
	return out
}

func printRules(w io.Writer, rules []ruleView) {
	_, _ = fmt.Fprintln(w, "NIC\tNAME\tPROTOCOL\tHOST IP\tHOST PORT\tGUEST IP\tGUEST PORT")
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%d\n",
			r.NIC, r.Name, r.Protocol, r.HostIP, r.HostPort, r.GuestIP, r.GuestPort)
	}
}

func printSnapshots(w io.Writer, snapshots []snapshotView) {
	_, _ = fmt.Fprintln(w, "NAME\tUUID\tCURRENT")
	for _, s := range snapshots {
		current := ""
		if s.Current {
			current = "*"
		}
		indent := strings.Repeat("  ", max(s.Depth-1, 0))
		_, _ = fmt.Fprintf(w, "%s%s\t%s\t%s\n", indent, s.Name, s.UUID, current)
	}
}
