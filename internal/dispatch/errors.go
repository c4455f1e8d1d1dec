package dispatch

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/manifold/internal/model"
	"github.com/hyperengineering/manifold/internal/validation"
)

// ValidationError reports local, synchronous draft validation failures.
// It is raised before any network call and never reaches the gateway.
type ValidationError struct {
	Errors []validation.ValidationError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return "invalid manifest draft: " + strings.Join(parts, "; ")
}

// GuardViolationError reports an attempt to edit or delete a manifest that
// a dispatched trip already references.
type GuardViolationError struct {
	ManifestID model.ID
}

func (e *GuardViolationError) Error() string {
	return fmt.Sprintf("manifest %s is referenced by a trip and cannot be modified", e.ManifestID)
}

// InvalidTransitionError reports a session operation issued from the wrong
// state.
type InvalidTransitionError struct {
	From State
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %q", e.Op, e.From)
}
