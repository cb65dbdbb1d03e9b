// Copyright 2026 Blink Labs Software
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

package budget

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type managerMetrics struct {
	proposals            prometheus.Gauge
	seenProposals        prometheus.Gauge
	finalizedBudgets     prometheus.Gauge
	seenFinalizedBudgets prometheus.Gauge
	orphanVotes          *prometheus.GaugeVec
	immatureItems        *prometheus.GaugeVec
	votes                *prometheus.CounterVec
	messages             *prometheus.CounterVec
	maintenancePasses    prometheus.Counter
	snapshotWrites       *prometheus.CounterVec
}

func (m *Manager) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.metrics = &managerMetrics{}
	m.metrics.proposals = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "treasury_budget_proposals",
		Help: "number of active budget proposals",
	})
	m.metrics.seenProposals = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "treasury_budget_proposals_seen",
		Help: "number of proposal broadcasts in the seen archive",
	})
	m.metrics.finalizedBudgets = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "treasury_budget_finalized",
		Help: "number of active finalized budgets",
	})
	m.metrics.seenFinalizedBudgets = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "treasury_budget_finalized_seen",
			Help: "number of finalized budget broadcasts in the seen archive",
		},
	)
	m.metrics.orphanVotes = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_budget_orphan_votes",
			Help: "number of votes waiting for their target",
		},
		[]string{"kind"},
	)
	m.metrics.immatureItems = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_budget_immature_items",
			Help: "number of broadcasts waiting for collateral confirmations",
		},
		[]string{"kind"},
	)
	m.metrics.votes = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_budget_votes_total",
			Help: "number of votes processed by kind and result",
		},
		[]string{"kind", "result"},
	)
	m.metrics.messages = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_budget_messages_total",
			Help: "number of governance messages processed by command",
		},
		[]string{"command"},
	)
	m.metrics.maintenancePasses = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_budget_maintenance_passes_total",
			Help: "number of maintenance passes run",
		},
	)
	m.metrics.snapshotWrites = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_budget_snapshot_writes_total",
			Help: "number of snapshot writes by result",
		},
		[]string{"result"},
	)
}

const (
	voteKindProposal  = "proposal"
	voteKindFinalized = "finalized"
)

func (m *Manager) recordVote(kind string, err error) {
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	m.metrics.votes.WithLabelValues(kind, result).Inc()
}
