package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketplace-service/internal/observability"
)

const wsRoutingKey = "ws_events.rooms"

func newConnID() string {
	return uuid.NewString()
}

// publishLifecycle emits a connection lifecycle event to the audit exchange.
func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID,
			"role":    info.Role,
			"ip":      info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("lifecycle", event)
}
