package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"identity-portal/internal/telemetry"
)

type recordCapture struct {
	recs []otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.recs = append(r.recs, rec)
}

func TestNewEventEmitter_NilProviders(t *testing.T) {
	em, err := NewEventEmitter(nil, nil)
	if err != nil {
		t.Fatalf("NewEventEmitter: %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "session"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestNewEventEmitter_SDKProviders(t *testing.T) {
	lp := sdklog.NewLoggerProvider()
	defer func() { _ = lp.Shutdown(context.Background()) }()
	em, err := NewEventEmitter(lp, sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewEventEmitter: %v", err)
	}
	if err := em.Emit(context.Background(), telemetry.Event{Flow: telemetry.FlowRegister, Outcome: "notified"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_RecordAttributes(t *testing.T) {
	cap := &recordCapture{}
	em, err := NewEventEmitterWithLogger(cap, nil)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	_ = em.Emit(context.Background(), telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "rejected", AccountID: "acc-1", At: at})
	if len(cap.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(cap.recs))
	}
	rec := cap.recs[0]
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{"flow": "login", "outcome": "rejected", "account_id": "acc-1"}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}

	_ = em.Emit(context.Background(), telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "invalid"})
	cap.recs[1].WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == "account_id" {
			t.Error("account_id should be omitted when empty")
		}
		return true
	})
}

func TestEmit_CountsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	em, err := NewEventEmitterWithLogger(nil, mp)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = em.Emit(ctx, telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "session"})
	_ = em.Emit(ctx, telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "session"})
	_ = em.Emit(ctx, telemetry.Event{Flow: telemetry.FlowLogin, Outcome: "rejected"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "identity.flow.outcomes" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				counts[v.AsString()] += dp.Value
			}
		}
	}
	if counts["session"] != 2 || counts["rejected"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
