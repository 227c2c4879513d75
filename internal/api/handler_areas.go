package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/model"
	"qr-parking-backend/internal/occupancy"
	"qr-parking-backend/internal/store"
)

// AreaResponse is the public status of one area.
type AreaResponse struct {
	AreaCode     string `json:"area_code"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	CurrentCount int    `json:"current_count"`
	Available    int    `json:"available"`
	Full         bool   `json:"full"`
}

func newAreaResponse(a model.ParkingArea) AreaResponse {
	available := a.Capacity - a.CurrentCount
	if available < 0 {
		available = 0
	}
	return AreaResponse{
		AreaCode:     a.AreaCode,
		Name:         a.AreaName,
		Capacity:     a.Capacity,
		CurrentCount: a.CurrentCount,
		Available:    available,
		Full:         a.IsFull(),
	}
}

// ListAreas handles GET /api/areas.
func (h *Handler) ListAreas(c *gin.Context) {
	areas, err := h.store.ListAreas(c.Request.Context())
	if err != nil {
		internalError(c, "Failed to retrieve areas", err)
		return
	}
	responses := make([]AreaResponse, 0, len(areas))
	for _, a := range areas {
		responses = append(responses, newAreaResponse(a))
	}
	c.JSON(http.StatusOK, responses)
}

// GetArea handles GET /api/areas/:area_code.
func (h *Handler) GetArea(c *gin.Context) {
	area, err := h.engine.AreaStatus(c.Request.Context(), c.Param("area_code"))
	if errors.Is(err, occupancy.ErrUnknownArea) {
		c.JSON(http.StatusNotFound, gin.H{"error": "area not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to retrieve area", err)
		return
	}
	c.JSON(http.StatusOK, newAreaResponse(*area))
}

// AreaVehicles handles GET /api/areas/:area_code/vehicles.
func (h *Handler) AreaVehicles(c *gin.Context) {
	code := c.Param("area_code")
	area, err := h.engine.AreaStatus(c.Request.Context(), code)
	if errors.Is(err, occupancy.ErrUnknownArea) {
		c.JSON(http.StatusNotFound, gin.H{"error": "area not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to retrieve area", err)
		return
	}

	sessions, err := h.store.OpenSessionsInArea(c.Request.Context(), code)
	if err != nil {
		internalError(c, "Failed to retrieve parked vehicles", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"area": newAreaResponse(*area), "sessions": sessions})
}

type putAreaRequest struct {
	AreaCode string `json:"area_code" binding:"required"`
	AreaName string `json:"area_name" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,gt=0"`
}

// PutArea handles PUT /api/admin/areas. The occupancy counter is left alone.
func (h *Handler) PutArea(c *gin.Context) {
	var req putAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	area := &model.ParkingArea{
		AreaCode: strings.TrimSpace(req.AreaCode),
		AreaName: strings.TrimSpace(req.AreaName),
		Capacity: req.Capacity,
	}
	err := h.store.UpsertArea(c.Request.Context(), area)
	if errors.Is(err, store.ErrCapacityBelowOccupancy) {
		c.JSON(http.StatusConflict, gin.H{"error": "capacity is below the number of vehicles parked in the area"})
		return
	}
	if err != nil {
		internalError(c, "Failed to save area", err)
		return
	}
	h.cache.Flush()

	saved, err := h.store.FindArea(c.Request.Context(), area.AreaCode)
	if err != nil {
		internalError(c, "Failed to retrieve area", err)
		return
	}
	c.JSON(http.StatusOK, newAreaResponse(*saved))
}

// RecountAreas handles POST /api/admin/areas/recount.
func (h *Handler) RecountAreas(c *gin.Context) {
	changes, err := h.engine.Recount(c.Request.Context())
	if err != nil {
		internalError(c, "Failed to recount areas", err)
		return
	}
	h.cache.Flush()
	if changes == nil {
		changes = []store.AreaRecount{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}
