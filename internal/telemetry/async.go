package telemetry

import (
	"context"
	"time"

	"identity-portal/internal/logging"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after gRPC GracefulStop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine so the caller is not blocked.
// A nil emitter returns immediately. The emit is detached from request cancellation and bounded by emitTimeout.
func EmitAsync(ctx context.Context, emitter EventEmitter, event Event, log logging.Logger) {
	if emitter == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logging.OrDiscard(log).Warn(emitCtx, "telemetry: async emit failed", "flow", event.Flow, "error", err)
		}
	}()
}
