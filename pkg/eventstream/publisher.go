package eventstream

import (
	"context"
	"errors"
)

// ErrNilTurnEvent is returned by PublishTurn when handed a nil event.
var ErrNilTurnEvent = errors.New("nil turn event")

// Publisher ships persisted turns to a downstream stream. PublishTurn is
// called from the indexing pool, never from the request path.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	Close() error
}
