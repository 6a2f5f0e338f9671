// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttemptsTotal counts register/login outcomes.
	// operation: register / login; result: success / invalid / conflict / error
	AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_auth_attempts_total",
		Help: "Register and login attempts by outcome.",
	}, []string{"operation", "result"})

	// TokenRejectedTotal counts requests rejected by the auth guard.
	// reason: missing_header / malformed_header / invalid_token / unknown_user
	TokenRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_token_rejected_total",
		Help: "Protected requests rejected by the auth guard.",
	}, []string{"reason"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskhub_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// BackgroundJobsTotal counts background pool outcomes.
	// result: succeeded / failed / panic / dropped / rejected
	BackgroundJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_background_jobs_total",
		Help: "Background jobs by name and outcome.",
	}, []string{"job", "result"})

	// RateLimitRejectedTotal counts credential requests refused by the limiter.
	RateLimitRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_ratelimit_rejected_total",
		Help: "Requests rejected by the credential route rate limiter.",
	}, []string{"route"})
)
