package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/registration"
	"qr-parking-backend/internal/store"
)

// RegisterVehicle handles POST /api/vehicles.
func (h *Handler) RegisterVehicle(c *gin.Context) {
	var in registration.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reg, err := h.registration.Register(c.Request.Context(), in)
	switch {
	case errors.Is(err, registration.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registration.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "plate number already registered"})
		return
	case err != nil:
		internalError(c, "Failed to register vehicle", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"vehicle":    reg.Vehicle,
		"qr_payload": reg.Payload,
		"qr_url":     "/api/vehicles/" + url.PathEscape(reg.Vehicle.PlateNumber) + "/qr",
	})
}

// GetVehicleQR handles GET /api/vehicles/:plate/qr.
func (h *Handler) GetVehicleQR(c *gin.Context) {
	path, err := h.registration.CodePath(c.Request.Context(), c.Param("plate"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return
	}
	if err != nil {
		internalError(c, "Failed to retrieve vehicle", err)
		return
	}
	c.Header("Content-Type", "image/png")
	c.File(path)
}

// ListVehicles handles GET /api/admin/vehicles.
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.store.ListVehicles(c.Request.Context())
	if err != nil {
		internalError(c, "Failed to retrieve vehicles", err)
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

// DeleteVehicle handles DELETE /api/admin/vehicles/:plate.
func (h *Handler) DeleteVehicle(c *gin.Context) {
	plate := c.Param("plate")
	if err := h.registration.Delete(c.Request.Context(), plate); err != nil {
		if errors.Is(err, registration.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		internalError(c, "Failed to delete vehicle", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "plate_number": plate})
}
