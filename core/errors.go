package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout marks a test or call that lost the race against its deadline
	ErrTimeout = errors.New("task timed out")
	// ErrCapabilityUnavailable is returned when a model is disqualified for a capability
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrInvalidRequest marks a malformed assessment or routing request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoPatterns is returned when a teacher yields nothing to distill
	ErrNoPatterns = errors.New("no extractable patterns")
	// ErrModelNotFound is returned by stores and registries for unknown models
	ErrModelNotFound = errors.New("model not found")
)

// CapabilityError reports a refused route to a disqualified model
type CapabilityError struct {
	Model      string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("model %s is disqualified for %s: %v", e.Model, e.Capability, ErrCapabilityUnavailable)
}

func (e *CapabilityError) Unwrap() error { return ErrCapabilityUnavailable }
