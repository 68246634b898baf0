// Package conversation defines the durable per-conversation dialogue record
// and its on-disk encodings.
package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Turn is one complete exchange. Only complete pairs are ever stored.
type Turn struct {
	Human string `json:"Human"`
	AI    string `json:"AI"`
}

// Record is the ordered dialogue history of a single conversation.
type Record struct {
	ID    string `json:"-"`
	Turns []Turn `json:"conversations"`
}

// New returns an empty record for id.
func New(id string) *Record {
	return &Record{ID: id, Turns: []Turn{}}
}

// NewID mints a new conversation identifier.
func NewID() string {
	return uuid.NewString()
}

// Append adds a completed turn to the end of the record.
func (r *Record) Append(human, ai string) {
	r.Turns = append(r.Turns, Turn{Human: human, AI: ai})
}

// Len returns the number of turns.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Turns)
}

// Clone returns a deep copy so callers can mutate it without touching a
// cached record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	turns := make([]Turn, len(r.Turns))
	copy(turns, r.Turns)
	return &Record{ID: r.ID, Turns: turns}
}

// Marshal encodes the record in its canonical indented JSON form:
//
//	{"conversations": [{"Human": "...", "AI": "..."}]}
func (r *Record) Marshal() ([]byte, error) {
	out := struct {
		Turns []Turn `json:"conversations"`
	}{Turns: r.Turns}
	if out.Turns == nil {
		out.Turns = []Turn{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling conversation %s: %w", r.ID, err)
	}
	return data, nil
}

// stored is the union of the canonical layout and the legacy layout, which
// kept the dialogue as a single transcript string under "history".
type stored struct {
	Turns   []Turn  `json:"conversations"`
	History *string `json:"history"`
}

// Unmarshal decodes a stored record. Records written in the legacy transcript
// layout are recovered through ParseTranscript. The second return value
// reports whether legacy recovery was used.
func Unmarshal(id string, data []byte) (*Record, bool, error) {
	var s stored
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decoding conversation %s: %w", id, err)
	}

	if s.Turns == nil && s.History != nil {
		return &Record{ID: id, Turns: ParseTranscript(*s.History)}, true, nil
	}

	rec := &Record{ID: id, Turns: s.Turns}
	if rec.Turns == nil {
		rec.Turns = []Turn{}
	}
	return rec, false, nil
}
