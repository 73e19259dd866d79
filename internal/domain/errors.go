package domain

import (
	"errors"
	"fmt"
)

// PreconditionError indicates a business rule that must hold before the operation.
type PreconditionError struct {
	Op     string
	Rule   string
	Detail string
}

func (e PreconditionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: precondition %s not met", e.Op, e.Rule)
	}
	return fmt.Sprintf("%s: precondition %s not met: %s", e.Op, e.Rule, e.Detail)
}

// InvalidTransitionError indicates a state machine edge that is not permitted.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s (%s)", e.Entity, e.From, e.To, e.ID)
}

// FinalizedError indicates a mutation on a terminal or locked record.
type FinalizedError struct {
	Entity string
	ID     string
}

func (e FinalizedError) Error() string {
	return fmt.Sprintf("%s %s is finalized", e.Entity, e.ID)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvariantViolationError indicates the write would break a cross-entity invariant.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// ValidationError indicates malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ForbiddenError indicates the actor lacks the role required for the operation.
type ForbiddenError struct {
	Actor string
	Role  string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s requires role %s", e.Actor, e.Role)
}

// Code classifies err for metric labels and API error envelopes.
func Code(err error) string {
	var (
		precondition PreconditionError
		transition   InvalidTransitionError
		finalized    FinalizedError
		notFound     NotFoundError
		invariant    InvariantViolationError
		validation   ValidationError
		forbidden    ForbiddenError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &precondition):
		return "precondition"
	case errors.As(err, &invariant):
		return "invariant_violation"
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.As(err, &finalized):
		return "finalized"
	case errors.As(err, &forbidden):
		return "forbidden"
	}
	return "internal"
}
