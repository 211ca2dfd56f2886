// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the Prometheus namespace for all passkey metrics.
const Namespace = "passkey"

// Metric label values.
const (
	LabelCeremonyRegistration   = "registration"
	LabelCeremonyAuthentication = "authentication"

	LabelStatusSuccess = "success"
	LabelStatusFailure = "failure"
)

var (
	// ceremoniesTotal counts completed ceremony attempts by outcome.
	ceremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of completed ceremony attempts by outcome.",
		},
		[]string{"ceremony", "status"},
	)

	// suspectedClonesTotal counts assertions rejected for a stale
	// signature counter. Tracked separately from ordinary verification
	// failures so counter regressions stand out in dashboards.
	suspectedClonesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "suspected_clones_total",
			Help:      "Total number of assertions rejected due to a non-advancing signature counter.",
		},
	)

	// challengesSweptTotal counts expired challenges removed by the
	// background sweeper.
	challengesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_swept_total",
			Help:      "Total number of expired challenges removed by the sweeper.",
		},
	)
)

func recordCeremony(ceremony string, err error) {
	status := LabelStatusSuccess
	if err != nil {
		status = LabelStatusFailure
	}
	ceremoniesTotal.WithLabelValues(ceremony, status).Inc()
}
