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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "vboxmanage"

	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds the prometheus collectors observed by the Runner.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Number of VBoxManage invocations by subcommand and result.",
		}, []string{"subcommand", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of VBoxManage invocations by subcommand.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"subcommand"}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.commands, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) observe(args []string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	subcommand := "none"
	if len(args) > 0 {
		subcommand = args[0]
	}

	result := resultSuccess
	if err != nil {
		result = resultFailure
	}

	m.commands.WithLabelValues(subcommand, result).Inc()
	m.duration.WithLabelValues(subcommand).Observe(elapsed.Seconds())
}
