package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEligibleRecords is returned by bulk operations when the requested
// transition applies to none of the selected records.
var ErrNoEligibleRecords = errors.New("no eligible records for bulk operation")

// Violation is a single broken business rule on a proposed entity state.
type Violation struct {
	Code    string      `json:"code"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Violation codes
const (
	CodeTemporalOrder   = "TEMPORAL_ORDER"
	CodeCodeFormat      = "CODE_FORMAT"
	CodeDistinctFields  = "DISTINCT_FIELDS"
	CodeNotPositive     = "NOT_POSITIVE"
	CodeNegative        = "NEGATIVE"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodeDuplicate       = "DUPLICATE"
	CodeRequired        = "REQUIRED"
	CodeDeadlineInPast  = "DEADLINE_IN_PAST"
)

// ValidationError aggregates every violation found on a proposed mutation.
// The mutation is rejected as a whole; nothing is partially applied.
type ValidationError struct {
	Entity     string      `json:"entity"`
	EntityID   string      `json:"entity_id,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%s validation failed: %s", e.Entity, strings.Join(msgs, "; "))
}

// NewValidationError wraps violations in a ValidationError, or returns nil
// when there are none.
func NewValidationError(entity, entityID string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Entity: entity, EntityID: entityID, Violations: violations}
}

// InvalidTransitionError reports an illegal status transition attempt. It is
// not retriable until the entity's state changes.
type InvalidTransitionError struct {
	Entity     string `json:"entity"`
	EntityID   string `json:"entity_id,omitempty"`
	Current    Status `json:"current"`
	Transition string `json:"transition"`
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot apply transition %q to %s in state %q", e.Transition, e.Entity, e.Current)
}

// AssignmentRejectedError reports a failed bin-to-flight assignment or
// unassignment precondition.
type AssignmentRejectedError struct {
	BinCode      string `json:"bin_code"`
	FlightNumber string `json:"flight_number,omitempty"`
	Reason       string `json:"reason"`
}

func (e *AssignmentRejectedError) Error() string {
	if e.FlightNumber == "" {
		return fmt.Sprintf("assignment rejected for bin %s: %s", e.BinCode, e.Reason)
	}
	return fmt.Sprintf("assignment rejected for bin %s on flight %s: %s", e.BinCode, e.FlightNumber, e.Reason)
}

// ImmutableAfterDepartureError reports a mutation of a write-once field after
// the linked flight has departed.
type ImmutableAfterDepartureError struct {
	BinCode      string `json:"bin_code"`
	FlightNumber string `json:"flight_number"`
	Field        string `json:"field"`
}

func (e *ImmutableAfterDepartureError) Error() string {
	return fmt.Sprintf("cannot modify %s for bin %s: flight %s has already departed", e.Field, e.BinCode, e.FlightNumber)
}

// DepartureBlockedError reports a departure transition blocked by overloaded
// bins still linked to the flight.
type DepartureBlockedError struct {
	FlightNumber   string   `json:"flight_number"`
	OverloadedBins []string `json:"overloaded_bins"`
}

func (e *DepartureBlockedError) Error() string {
	return fmt.Sprintf("cannot depart flight %s with overloaded bins: %s", e.FlightNumber, strings.Join(e.OverloadedBins, ", "))
}
