package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/airlogistic/internal/repository"
	"example.com/backstage/services/airlogistic/internal/service"
)

// CargoHandler serves the cargo flight and bin endpoints
type CargoHandler struct {
	svc service.CargoService
}

// NewCargoHandler creates a cargo handler
func NewCargoHandler(svc service.CargoService) *CargoHandler {
	return &CargoHandler{svc: svc}
}

func (h *CargoHandler) listFlights(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	flights, err := h.svc.ListFlights(c.Request.Context(), repository.CargoFlightFilter{
		TenantID:     actorFrom(c).TenantID,
		Status:       c.Query("status"),
		FlightNumber: c.Query("flight_number"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flights": flights, "count": len(flights)})
}

func (h *CargoHandler) getFlight(c *gin.Context) {
	flight, err := h.svc.GetFlight(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *CargoHandler) flightBins(c *gin.Context) {
	bins, err := h.svc.FlightBins(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bins": bins, "count": len(bins)})
}

func (h *CargoHandler) createFlight(c *gin.Context) {
	var req service.CreateCargoFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	flight, err := h.svc.CreateFlight(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flight)
}

func (h *CargoHandler) updateFlight(c *gin.Context) {
	var req service.UpdateCargoFlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	flight, err := h.svc.UpdateFlight(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *CargoHandler) transitionFlight(c *gin.Context) {
	flight, err := h.svc.TransitionFlight(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("transition"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, flight)
}

func (h *CargoHandler) deleteFlight(c *gin.Context) {
	if err := h.svc.DeleteFlight(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CargoHandler) listBins(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	bins, err := h.svc.ListBins(c.Request.Context(), repository.BinFilter{
		TenantID: actorFrom(c).TenantID,
		State:    c.Query("state"),
		FlightID: c.Query("flight_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bins": bins, "count": len(bins)})
}

func (h *CargoHandler) availableBins(c *gin.Context) {
	minVolume, _ := strconv.ParseFloat(c.Query("min_volume"), 64)
	minWeight, _ := strconv.ParseFloat(c.Query("min_max_weight"), 64)

	bins, err := h.svc.AvailableBins(c.Request.Context(), actorFrom(c).TenantID, minVolume, minWeight)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bins": bins, "count": len(bins)})
}

func (h *CargoHandler) overloadedBins(c *gin.Context) {
	bins, err := h.svc.OverloadedBins(c.Request.Context(), actorFrom(c).TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bins": bins, "count": len(bins)})
}

func (h *CargoHandler) getBin(c *gin.Context) {
	bin, err := h.svc.GetBin(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}

func (h *CargoHandler) createBin(c *gin.Context) {
	var req service.CreateBinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	bin, err := h.svc.CreateBin(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bin)
}

func (h *CargoHandler) updateBin(c *gin.Context) {
	var req service.UpdateBinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	bin, err := h.svc.UpdateBin(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}

func (h *CargoHandler) deleteBin(c *gin.Context) {
	if err := h.svc.DeleteBin(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	FlightID string `json:"flight_id" binding:"required"`
}

func (h *CargoHandler) assignBin(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	bin, err := h.svc.Assign(c.Request.Context(), actorFrom(c), c.Param("id"), req.FlightID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}

func (h *CargoHandler) unassignBin(c *gin.Context) {
	bin, err := h.svc.Unassign(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}

func (h *CargoHandler) resetBinWeight(c *gin.Context) {
	bin, err := h.svc.ResetWeight(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}

func (h *CargoHandler) binMaintenance(c *gin.Context) {
	bin, err := h.svc.SetMaintenance(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bin)
}
