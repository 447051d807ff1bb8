package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/airlogistic/internal/repository"
	"example.com/backstage/services/airlogistic/internal/service"
)

// RecordHandler serves the sample record endpoints
type RecordHandler struct {
	svc service.RecordService
}

// NewRecordHandler creates a record handler
func NewRecordHandler(svc service.RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

func (h *RecordHandler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	records, err := h.svc.List(c.Request.Context(), repository.RecordFilter{
		TenantID:   actorFrom(c).TenantID,
		State:      c.Query("state"),
		Priority:   c.Query("priority"),
		AssigneeID: c.Query("assignee_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (h *RecordHandler) get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordHandler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), actorFrom(c).TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *RecordHandler) create(c *gin.Context) {
	var req service.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	record, err := h.svc.Create(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *RecordHandler) update(c *gin.Context) {
	var req service.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	record, err := h.svc.Update(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordHandler) transition(c *gin.Context) {
	record, err := h.svc.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("transition"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordHandler) addLine(c *gin.Context) {
	var req service.LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	line, err := h.svc.AddLine(c.Request.Context(), actorFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

func (h *RecordHandler) updateLine(c *gin.Context) {
	var req service.LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	line, err := h.svc.UpdateLine(c.Request.Context(), actorFrom(c), c.Param("lineId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *RecordHandler) deleteLine(c *gin.Context) {
	if err := h.svc.DeleteLine(c.Request.Context(), actorFrom(c), c.Param("lineId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addTagsRequest struct {
	Tags []string `json:"tags" binding:"required,min=1"`
}

func (h *RecordHandler) addTags(c *gin.Context) {
	var req addTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	record, err := h.svc.AddTags(c.Request.Context(), actorFrom(c), c.Param("id"), req.Tags)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *RecordHandler) bulk(c *gin.Context) {
	var req service.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return
	}

	result, err := h.svc.Bulk(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
