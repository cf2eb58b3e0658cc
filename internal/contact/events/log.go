package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. It is the default sink
// and the fallback when the broker is unavailable.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		p.logger.InfoContext(ctx, "contact link event",
			"event_id", e.ID,
			"type", string(e.Type),
			"contact_id", e.ContactID,
			"primary_contact_id", e.PrimaryContactID,
			"request_id", e.RequestID,
		)
	}
	return nil
}
