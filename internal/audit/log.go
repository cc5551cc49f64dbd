package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"dupulse.app/internal/auth"
	"dupulse.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "audit",
		"event":    event,
		"event_id": uuid.NewString(),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		entry["user_id"] = identity.ID
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// GateAudit records every gate verdict as an audit event.
type GateAudit struct{}

var _ auth.Observer = GateAudit{}

func (GateAudit) ObserveStage(string, time.Duration, error) {}

func (GateAudit) ObserveVerdict(ctx context.Context, v auth.Verdict) {
	if v.Allowed() {
		_ = LogEvent(ctx, "admin.gate.allowed", map[string]any{
			"uid":   v.Identity.ID,
			"email": v.Identity.Email,
		})
		return
	}
	fields := map[string]any{"reason": v.Reason.String()}
	if v.Err != nil {
		fields["error"] = v.Err.Error()
	}
	_ = LogEvent(ctx, "admin.gate.denied", fields)
}
