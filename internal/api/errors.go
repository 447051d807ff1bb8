package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"example.com/backstage/services/airlogistic/internal/domain"
	"example.com/backstage/services/airlogistic/internal/repository"
)

// errorResponse is the envelope for every non-2xx reply.
type errorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// respondError maps domain errors onto HTTP statuses. Rule violations are
// unprocessable; rejected transitions and assignments are conflicts with the
// entity's current state.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *domain.ValidationError
		transitionErr *domain.InvalidTransitionError
		assignmentErr *domain.AssignmentRejectedError
		immutableErr  *domain.ImmutableAfterDepartureError
		departureErr  *domain.DepartureBlockedError
		fieldErrs     validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:   validationErr.Error(),
			Code:    "validation_failed",
			Details: validationErr.Violations,
		})
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: err.Error(),
			Code:  "bad_request",
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, errorResponse{
			Error:   transitionErr.Error(),
			Code:    "invalid_transition",
			Details: transitionErr,
		})
	case errors.As(err, &assignmentErr):
		c.JSON(http.StatusConflict, errorResponse{
			Error:   assignmentErr.Error(),
			Code:    "assignment_rejected",
			Details: assignmentErr,
		})
	case errors.As(err, &immutableErr):
		c.JSON(http.StatusConflict, errorResponse{
			Error:   immutableErr.Error(),
			Code:    "immutable_after_departure",
			Details: immutableErr,
		})
	case errors.As(err, &departureErr):
		c.JSON(http.StatusConflict, errorResponse{
			Error:   departureErr.Error(),
			Code:    "departure_blocked",
			Details: departureErr,
		})
	case errors.Is(err, domain.ErrNoEligibleRecords):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Code:  "no_eligible_records",
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{
			Error: "not found",
			Code:  "not_found",
		})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: "internal server error",
			Code:  "internal",
		})
	}
}
