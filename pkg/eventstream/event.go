package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "parley.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Turn          TurnPayload `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Service  string `json:"service"`
	Provider string `json:"provider,omitempty"`
}

// TurnPayload is the persisted exchange.
type TurnPayload struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Seq            int       `json:"seq"`
	Human          string    `json:"human"`
	AI             string    `json:"ai"`
	PersistedAt    time.Time `json:"persisted_at"`
}

// NewTurnPersistedEvent stamps turn with a fresh event id and the current time.
func NewTurnPersistedEvent(source EventSource, turn TurnPayload) *TurnPersistedEvent {
	return &TurnPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnPersisted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Turn:          turn,
	}
}
