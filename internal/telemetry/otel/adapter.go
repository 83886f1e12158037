package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"identity-portal/internal/telemetry"
)

const instrumentationName = "identity-portal/identity"

// recordEmitter is the part of an OTel logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that writes each flow event as an OTel
// log record and counts it on the identity.flow.outcomes counter. Either provider
// may be nil.
func NewEventEmitter(lp otellog.LoggerProvider, mp metric.MeterProvider) (telemetry.EventEmitter, error) {
	var logger recordEmitter
	if lp != nil {
		logger = lp.Logger(instrumentationName)
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	return newEmitter(logger, mp.Meter(instrumentationName))
}

// NewEventEmitterWithLogger is NewEventEmitter with an explicit log sink; used in tests.
func NewEventEmitterWithLogger(logger recordEmitter, mp metric.MeterProvider) (telemetry.EventEmitter, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	return newEmitter(logger, mp.Meter(instrumentationName))
}

func newEmitter(logger recordEmitter, meter metric.Meter) (*otelEmitter, error) {
	outcomes, err := meter.Int64Counter("identity.flow.outcomes",
		metric.WithDescription("Terminal outcomes of identity flows"),
		metric.WithUnit("{outcome}"))
	if err != nil {
		return nil, err
	}
	return &otelEmitter{logger: logger, outcomes: outcomes}, nil
}

type otelEmitter struct {
	logger   recordEmitter
	outcomes metric.Int64Counter
}

// Emit records the event. Best-effort; it never fails once constructed.
func (e *otelEmitter) Emit(ctx context.Context, event telemetry.Event) error {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", event.Flow),
		attribute.String("outcome", event.Outcome),
	))
	if e.logger == nil {
		return nil
	}
	rec := otellog.Record{}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rec.SetTimestamp(at)
	rec.SetBody(otellog.StringValue(event.Flow + ": " + event.Outcome))
	rec.AddAttributes(
		otellog.String("flow", event.Flow),
		otellog.String("outcome", event.Outcome),
	)
	if event.AccountID != "" {
		rec.AddAttributes(otellog.String("account_id", event.AccountID))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
