package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/occupancy"
)

type scanRequest struct {
	QRText      string `json:"qr_text"`
	PlateNumber string `json:"plate_number"`
	AreaCode    string `json:"area_code"`
}

func (r scanRequest) payload() string {
	if r.QRText != "" {
		return r.QRText
	}
	return r.PlateNumber
}

// ScanPlate handles POST /api/scan. Without area_code the scan toggles the
// plate between entered and exited.
func (h *Handler) ScanPlate(c *gin.Context) {
	req, ok := bindScan(c)
	if !ok {
		return
	}
	h.submit(c, req.payload(), req.AreaCode)
}

// ScanArea handles POST /api/areas/:area_code/scan.
func (h *Handler) ScanArea(c *gin.Context) {
	req, ok := bindScan(c)
	if !ok {
		return
	}
	h.submit(c, req.payload(), c.Param("area_code"))
}

// bindScan reads the scan body. A missing or empty body is an empty payload,
// which submit rejects as carrying no plate.
func bindScan(c *gin.Context) (scanRequest, bool) {
	var req scanRequest
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"status": occupancy.StatusError, "kind": "bad_request", "message": "invalid request"})
		return req, false
	}
	return req, true
}

func (h *Handler) submit(c *gin.Context, raw, areaCode string) {
	res, err := h.gateway.Submit(c.Request.Context(), raw, areaCode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, occupancy.ErrEmptyIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{"status": occupancy.StatusError, "kind": "empty_identifier", "message": "No plate found"})
	case errors.Is(err, occupancy.ErrUnknownArea):
		c.JSON(http.StatusNotFound, gin.H{"status": occupancy.StatusError, "kind": "unknown_area", "message": "Unknown area"})
	default:
		log.Printf("Scan into %q failed: %v", areaCode, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": occupancy.StatusError, "kind": "storage", "message": "Backend error, please retry"})
	}
}
