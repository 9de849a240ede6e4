package telemetry

import "github.com/prometheus/client_golang/prometheus"

var JobsClaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "scheduler",
		Name:      "jobs_claimed_total",
		Help:      "Total number of sync jobs claimed by the dispatcher.",
	},
	[]string{"job_type"},
)

var JobsDeferredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "scheduler",
		Name:      "jobs_deferred_total",
		Help:      "Total number of sync jobs deferred by an admission gate.",
	},
	[]string{"job_type", "reason"},
)

var JobsStaleReapedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "scheduler",
		Name:      "jobs_stale_reaped_total",
		Help:      "Total number of jobs forcibly failed by the stale-job reaper.",
	},
)

var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "worker",
		Name:      "jobs_completed_total",
		Help:      "Total number of jobs completed by terminal status.",
	},
	[]string{"job_type", "status"},
)

var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "syncforge",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Sync job execution duration in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"job_type"},
)

var BudgeterTenantUsed = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "syncforge",
		Subsystem: "budgeter",
		Name:      "tenant_used",
		Help:      "Requests recorded today for a (platform, tenant) pair.",
	},
	[]string{"platform", "tenant"},
)

var BudgeterGlobalUsed = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "syncforge",
		Subsystem: "budgeter",
		Name:      "global_used",
		Help:      "Requests recorded today for a platform, across all tenants.",
	},
	[]string{"platform"},
)

var HTTPClientRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "httpclient",
		Name:      "retries_total",
		Help:      "Total number of retried outbound HTTP requests by reason.",
	},
	[]string{"reason"},
)

var CursorLagSeconds = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "syncforge",
		Subsystem: "adapter",
		Name:      "cursor_lag_seconds",
		Help:      "Seconds between now and the last checkpointed cursor timestamp.",
	},
	[]string{"platform", "stream", "tenant"},
)

var WebhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syncforge",
		Subsystem: "webhook",
		Name:      "received_total",
		Help:      "Total number of inbound newsletter webhooks by event kind.",
	},
	[]string{"event"},
)

// All returns every syncforge metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsClaimedTotal,
		JobsDeferredTotal,
		JobsStaleReapedTotal,
		JobsCompletedTotal,
		JobDuration,
		BudgeterTenantUsed,
		BudgeterGlobalUsed,
		HTTPClientRetriesTotal,
		CursorLagSeconds,
		WebhooksReceivedTotal,
	}
}
