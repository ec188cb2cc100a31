package actor

import "fmt"

// ActivationError reports that the instance for Key could not be created or restored.
type ActivationError struct {
	Kind string
	Key  string
	Err  error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %s %q: %v", e.Kind, e.Key, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
