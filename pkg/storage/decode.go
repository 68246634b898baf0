package storage

import (
	"log/slog"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
)

// DecodeRecord decodes a stored record for backends that keep the JSON
// layout as an opaque blob. A record that cannot be decoded is logged and
// replaced by an empty one so the conversation stays usable. attrs are
// added to the log lines, e.g. the object or item the data came from.
func DecodeRecord(log *slog.Logger, id string, data []byte, attrs ...any) *conversation.Record {
	if log == nil {
		log = logger.Nop()
	}

	rec, legacy, err := conversation.Unmarshal(id, data)
	if err != nil {
		log.Warn("conversation record is corrupt, starting empty",
			append([]any{"conversation_id", id, "error", err}, attrs...)...,
		)
		return conversation.New(id)
	}
	if legacy {
		log.Warn("recovered conversation from legacy history transcript",
			append([]any{"conversation_id", id, "turns", rec.Len()}, attrs...)...,
		)
	}
	return rec
}
