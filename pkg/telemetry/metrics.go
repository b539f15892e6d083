// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/openjdk/jmerge/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/openjdk/jmerge"
)

// Metrics holds all application metrics
type Metrics struct {
	// Check run metrics
	CheckRunsTotal    metric.Int64Counter
	CheckRunDuration  metric.Float64Histogram
	ActiveCheckRuns   metric.Int64UpDownCounter
	CheckRunsByStatus metric.Int64Counter
	CacheHitsTotal    metric.Int64Counter

	// Forge metrics
	ForgeMutationsTotal metric.Int64Counter
	ForgeMutationErrors metric.Int64Counter

	// Command metrics
	CommandsTotal metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Git metrics
	GitFetchTotal    metric.Int64Counter
	GitFetchDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	// Check run metrics
	m.CheckRunsTotal, err = meter.Int64Counter(
		"jmerge_checkruns_total",
		metric.WithDescription("Total number of per-PR check runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.CheckRunDuration, err = meter.Float64Histogram(
		"jmerge_checkrun_duration_seconds",
		metric.WithDescription("Duration of per-PR check runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveCheckRuns, err = meter.Int64UpDownCounter(
		"jmerge_active_checkruns",
		metric.WithDescription("Number of currently running check runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.CheckRunsByStatus, err = meter.Int64Counter(
		"jmerge_checkruns_by_status_total",
		metric.WithDescription("Total number of check runs by resulting check status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHitsTotal, err = meter.Int64Counter(
		"jmerge_checkrun_cache_hits_total",
		metric.WithDescription("Total number of check runs skipped due to an unchanged fingerprint"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	// Forge metrics
	m.ForgeMutationsTotal, err = meter.Int64Counter(
		"jmerge_forge_mutations_total",
		metric.WithDescription("Total number of forge mutations applied by the reconciler"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, err
	}

	m.ForgeMutationErrors, err = meter.Int64Counter(
		"jmerge_forge_mutation_errors_total",
		metric.WithDescription("Total number of failed forge mutations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	// Command metrics
	m.CommandsTotal, err = meter.Int64Counter(
		"jmerge_commands_total",
		metric.WithDescription("Total number of slash commands processed"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	// HTTP metrics
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"jmerge_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"jmerge_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	// Git metrics
	m.GitFetchTotal, err = meter.Int64Counter(
		"jmerge_git_fetch_total",
		metric.WithDescription("Total number of git fetch operations"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	m.GitFetchDuration, err = meter.Float64Histogram(
		"jmerge_git_fetch_duration_seconds",
		metric.WithDescription("Duration of git fetch operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordCheckRunStarted records that a per-PR check run has started
func (m *Metrics) RecordCheckRunStarted(ctx context.Context, bot, repo string) {
	if m.CheckRunsTotal == nil {
		return
	}
	m.CheckRunsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("bot", bot),
			attribute.String("repo", repo),
		),
	)
	if m.ActiveCheckRuns != nil {
		m.ActiveCheckRuns.Add(ctx, 1)
	}
}

// RecordCheckRunCompleted records that a check run has completed
func (m *Metrics) RecordCheckRunCompleted(ctx context.Context, status string, durationSeconds float64) {
	if m.ActiveCheckRuns != nil {
		m.ActiveCheckRuns.Add(ctx, -1)
	}
	if m.CheckRunsByStatus != nil {
		m.CheckRunsByStatus.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
	if m.CheckRunDuration != nil {
		m.CheckRunDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordCacheHit records a check run skipped due to an unchanged fingerprint
func (m *Metrics) RecordCacheHit(ctx context.Context, repo string) {
	if m.CacheHitsTotal == nil {
		return
	}
	m.CacheHitsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("repo", repo)),
	)
}

// RecordForgeMutation records a reconciler mutation against the forge
func (m *Metrics) RecordForgeMutation(ctx context.Context, kind string, success bool) {
	if m.ForgeMutationsTotal != nil {
		m.ForgeMutationsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("kind", kind),
				attribute.Bool("success", success),
			),
		)
	}
	if !success && m.ForgeMutationErrors != nil {
		m.ForgeMutationErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("kind", kind)),
		)
	}
}

// RecordCommand records a processed slash command
func (m *Metrics) RecordCommand(ctx context.Context, verb string, authorized bool) {
	if m.CommandsTotal == nil {
		return
	}
	m.CommandsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.Bool("authorized", authorized),
		),
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}

// RecordGitFetch records a git fetch operation
func (m *Metrics) RecordGitFetch(ctx context.Context, repo string, success bool, durationSeconds float64) {
	if m.GitFetchTotal != nil {
		m.GitFetchTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("repo", repo),
				attribute.Bool("success", success),
			),
		)
	}
	if m.GitFetchDuration != nil {
		m.GitFetchDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("repo", repo),
				attribute.Bool("success", success),
			),
		)
	}
}
