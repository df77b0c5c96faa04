package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/saga-it/qyburn"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Event bus metrics
	EventsPublishedTotal metric.Int64Counter
	EventsDroppedTotal   metric.Int64Counter
	ListenerFailures     metric.Int64Counter
	ActiveSubscribers    metric.Int64UpDownCounter

	// Workflow metrics
	RequestsSubmittedTotal  metric.Int64Counter
	LicensesAssignedTotal   metric.Int64Counter
	AssignmentFailuresTotal metric.Int64Counter
	RequestsReviewedTotal   metric.Int64Counter

	// Bot metrics
	CommandsTotal       metric.Int64Counter
	MessagesTotal       metric.Int64Counter
	RateLimitedTotal    metric.Int64Counter
	UpstreamCallLatency metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.EventsPublishedTotal, _ = meter.Int64Counter(
		"qyburn.events.published.total",
		metric.WithDescription("Total number of live events published"),
		metric.WithUnit("{event}"),
	)

	m.EventsDroppedTotal, _ = meter.Int64Counter(
		"qyburn.events.dropped.total",
		metric.WithDescription("Total number of live events dropped because a subscriber queue was full"),
		metric.WithUnit("{event}"),
	)

	m.ListenerFailures, _ = meter.Int64Counter(
		"qyburn.events.listener_failures.total",
		metric.WithDescription("Total number of subscribers removed after a delivery failure"),
		metric.WithUnit("{listener}"),
	)

	m.ActiveSubscribers, _ = meter.Int64UpDownCounter(
		"qyburn.events.subscribers.active",
		metric.WithDescription("Number of active live event subscribers"),
		metric.WithUnit("{listener}"),
	)

	m.RequestsSubmittedTotal, _ = meter.Int64Counter(
		"qyburn.requests.submitted.total",
		metric.WithDescription("Total number of license and group requests submitted"),
		metric.WithUnit("{request}"),
	)

	m.LicensesAssignedTotal, _ = meter.Int64Counter(
		"qyburn.licenses.assigned.total",
		metric.WithDescription("Total number of license seats auto-assigned"),
		metric.WithUnit("{seat}"),
	)

	m.AssignmentFailuresTotal, _ = meter.Int64Counter(
		"qyburn.licenses.assignment_failures.total",
		metric.WithDescription("Total number of auto-assignments rolled back after a directory failure"),
		metric.WithUnit("{seat}"),
	)

	m.RequestsReviewedTotal, _ = meter.Int64Counter(
		"qyburn.requests.reviewed.total",
		metric.WithDescription("Total number of group access requests reviewed"),
		metric.WithUnit("{request}"),
	)

	m.CommandsTotal, _ = meter.Int64Counter(
		"qyburn.bot.commands.total",
		metric.WithDescription("Total number of slash commands routed"),
		metric.WithUnit("{command}"),
	)

	m.MessagesTotal, _ = meter.Int64Counter(
		"qyburn.bot.messages.total",
		metric.WithDescription("Total number of free-text messages answered"),
		metric.WithUnit("{message}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"qyburn.bot.rate_limited.total",
		metric.WithDescription("Total number of bot calls rejected by the per-caller rate limit"),
		metric.WithUnit("{call}"),
	)

	m.UpstreamCallLatency, _ = meter.Float64Histogram(
		"qyburn.upstream.call.duration",
		metric.WithDescription("Duration of directory, chat and messaging calls"),
		metric.WithUnit("ms"),
	)

	return m
}
