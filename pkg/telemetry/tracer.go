// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the default tracer name for the application
	TracerName = "github.com/openjdk/jmerge"
)

// Tracer returns the global tracer for the application
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a new span with the given name and returns the context and span.
// The caller is responsible for calling span.End() when the operation is complete.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from the context.
// If no span is found, a no-op span is returned.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError records an error on the span and sets its status to error
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanOK sets the span status to OK
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// Common attribute keys for consistent naming
var (
	// Work item attributes
	AttrWorkItemID = attribute.Key("workitem.id")
	AttrBotName    = attribute.Key("bot.name")

	// Repository attributes
	AttrRepoFullName = attribute.Key("repo.full_name")
	AttrRepoForge    = attribute.Key("repo.forge")
	AttrTargetRef    = attribute.Key("repo.target_ref")

	// Pull request attributes
	AttrPRNumber = attribute.Key("pr.number")
	AttrPRHead   = attribute.Key("pr.head")
	AttrPRState  = attribute.Key("pr.state")

	// Check attributes
	AttrCheckStatus   = attribute.Key("check.status")
	AttrFindingsCount = attribute.Key("check.findings")
	AttrCacheHit      = attribute.Key("check.cache_hit")
	AttrDurationMs    = attribute.Key("duration.ms")
)

// WithPRAttributes returns span start options identifying a pull request
func WithPRAttributes(repoFullName string, prNumber int, headHash string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrRepoFullName.String(repoFullName),
		AttrPRNumber.Int(prNumber),
		AttrPRHead.String(headHash),
	)
}

// WithBotAttributes returns span start options identifying a bot instance
func WithBotAttributes(botName, repoFullName string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrBotName.String(botName),
		AttrRepoFullName.String(repoFullName),
	)
}
