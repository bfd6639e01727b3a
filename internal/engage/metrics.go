package engage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope for engine metrics.
const MeterName = "github.com/celerix-dev/celerix-companion/internal/engage"

// Metrics holds the engine's instruments.
type Metrics struct {
	Messages           metric.Int64Counter
	GenerationDuration metric.Float64Histogram
	GenerationFailures metric.Int64Counter
	AppointmentsArmed  metric.Int64Counter
}

// NewMetrics creates all instruments from meter. A nil meter yields no-op
// instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}
	m := &Metrics{}
	var err error

	m.Messages, err = meter.Int64Counter("companion.messages",
		metric.WithDescription("Inbound messages by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.GenerationDuration, err = meter.Float64Histogram("companion.generation.duration",
		metric.WithDescription("Completion provider call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.GenerationFailures, err = meter.Int64Counter("companion.generation.failures",
		metric.WithDescription("Failed completion provider calls by kind"),
	)
	if err != nil {
		return nil, err
	}

	m.AppointmentsArmed, err = meter.Int64Counter("companion.appointments.armed",
		metric.WithDescription("Appointments armed by persona and reason"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) outcome(ctx context.Context, o Outcome, persona string) {
	m.Messages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(o)),
		attribute.String("persona", persona),
	))
}

func (m *Metrics) armed(ctx context.Context, persona, reason string) {
	m.AppointmentsArmed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("persona", persona),
		attribute.String("reason", reason),
	))
}

func metricKind(kind string) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}
