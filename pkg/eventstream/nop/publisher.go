// Package nop provides the publisher used when no event stream is configured.
package nop

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/logger"
)

// Publisher drops every event after validating it.
type Publisher struct {
	logger *slog.Logger
}

// NewPublisher creates a no-op publisher. A nil logger discards output.
func NewPublisher(log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{logger: log}
}

func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	p.logger.Debug("turn event discarded",
		"event_id", event.EventID,
		"conversation_id", event.Turn.ConversationID,
	)
	return nil
}

func (p *Publisher) Close() error {
	return nil
}
