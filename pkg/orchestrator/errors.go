package orchestrator

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Generate after Close.
var ErrClosed = errors.New("orchestrator is closed")

// Stage names a step of a Generate call.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StageResolvingID    Stage = "resolving_id"
	StageLoadingHistory Stage = "loading_history"
	StageAssembling     Stage = "assembling"
	StageInvokingModel  Stage = "invoking_model"
	StagePersisting     Stage = "persisting"
	StageDone           Stage = "done"
)

// GenerationError reports the stage at which Generate failed. Nothing is
// persisted for a failed call except, possibly, the empty record of a newly
// minted conversation id.
type GenerationError struct {
	Stage          Stage
	ConversationID string
	Reason         string
	Err            error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate failed while %s: %s", e.Stage, e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func fail(stage Stage, id string, err error) *GenerationError {
	return &GenerationError{Stage: stage, ConversationID: id, Reason: err.Error(), Err: err}
}
