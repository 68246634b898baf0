package gateway

import "fmt"

// ConfigurationError reports a model session that cannot be constructed:
// an unsupported provider tag, a missing credential or a client that
// refuses its configuration. It is not retried automatically.
type ConfigurationError struct {
	Provider string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("model configuration (%s): %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ModelError reports a failed model invocation.
type ModelError struct {
	Reason string
	Err    error
}

func (e *ModelError) Error() string {
	return "model invocation failed: " + e.Reason
}

func (e *ModelError) Unwrap() error {
	return e.Err
}
