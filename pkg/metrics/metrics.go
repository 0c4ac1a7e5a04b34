// Package metrics defines the Prometheus collectors for the registry and
// the fleet workers. Collectors register on the default registry; the
// registry binary serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "replyfleet"

// Registry-side collectors.
var (
	ClaimRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "registry", Name: "claim_requests_total",
		Help: "Claim requests received from workers.",
	})

	ClaimedUsersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "registry", Name: "claimed_users_total",
		Help: "Leases handed out by the claim transaction.",
	})

	WatchdogReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "registry", Name: "watchdog_released_total",
		Help: "Stale leases released by the watchdog.",
	})

	PlansExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "registry", Name: "plans_expired_total",
		Help: "Plans downgraded to free by the expiry sweep.",
	})
)

// Worker-side collectors.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "worker", Name: "active_sessions",
		Help: "Client sessions currently owned by this worker.",
	})

	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "sessions_started_total",
		Help: "Client sessions started after a successful claim.",
	})

	HeartbeatFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "heartbeat_failures_total",
		Help: "Heartbeat posts that failed (transient, swallowed).",
	})

	RepliesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "replies_sent_total",
		Help: "Auto-replies delivered after a trigger match.",
	})

	RevocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worker", Name: "revocations_total",
		Help: "Sessions torn down after server-side revocation.",
	})
)
