package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"securevote/client/internal/telemetry"
)

// NewEventEmitter returns an EventEmitter that sends client events as OTel
// log records via the given LoggerProvider. If provider is nil, returns a
// no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger("securevote.client")}
}

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the client event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetBody(otellog.StringValue(event.Name))
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.ElectionID != "" {
		rec.AddAttributes(otellog.String("election_id", event.ElectionID))
	}
	if event.Detail != "" {
		rec.AddAttributes(otellog.String("detail", event.Detail))
	}
	if !event.At.IsZero() {
		rec.SetTimestamp(event.At)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	e.logger.Emit(ctx, rec)
	return nil
}
