package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/airlogistic/internal/repository"
	"example.com/backstage/services/airlogistic/internal/service"
)

// FlightHandler serves the scheduled flight endpoints
type FlightHandler struct {
	svc service.FlightService
}

// NewFlightHandler creates a flight handler
func NewFlightHandler(svc service.FlightService) *FlightHandler {
	return &FlightHandler{svc: svc}
}

func (h *FlightHandler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	flights, err := h.svc.List(c.Request.Context(), repository.FlightFilter{
		TenantID:        actorFrom(c).TenantID,
		Status:          c.Query("status"),
		DepartureDate:   c.Query("departure_date"),
		Airport:         c.Query("airport"),
		IncludeInactive: c.Query("include_inactive") == "true",
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flights": flights, "count": len(flights)})
}

func (h *FlightHandler) get(c *gin.Context) {
	flight, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) create(c *gin.Context) {
	var req service.CreateFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	flight, err := h.svc.Create(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *FlightHandler) update(c *gin.Context) {
	var req service.UpdateFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	flight, err := h.svc.Update(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) transition(c *gin.Context) {
	flight, err := h.svc.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("transition"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *FlightHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
