package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDecisions counts access decisions by permission and outcome
	// (allow|deny|error).
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_access_decisions_total",
			Help: "Total number of access decisions",
		},
		[]string{"permission", "result"},
	)

	// AccessRequests counts access-request lifecycle transitions
	// (created|approved|rejected|superseded).
	AccessRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_access_requests_total",
			Help: "Total number of access request transitions",
		},
		[]string{"transition"},
	)

	// ResolverLookups counts object metadata lookups by source (cache|upstream)
	// and outcome (hit|miss|ok|not_found|error).
	ResolverLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseguard_resolver_lookups_total",
			Help: "Total number of object metadata lookups",
		},
		[]string{"source", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseguard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
