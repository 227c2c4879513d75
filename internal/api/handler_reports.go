package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/store"
)

const (
	reportDays      = 30
	reportMonths    = 12
	defaultHistory  = 100
	maxHistoryLimit = 1000
)

// Search handles GET /api/search?q=.
func (h *Handler) Search(c *gin.Context) {
	res, err := h.store.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		internalError(c, "Search failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := defaultHistory
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	sessions, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "Failed to retrieve sessions", err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// Dashboard handles GET /api/admin/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.store.Dashboard(c.Request.Context(), h.now(), h.loc)
	if err != nil {
		internalError(c, "Failed to build dashboard", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DailyReport handles GET /api/admin/reports/daily.
func (h *Handler) DailyReport(c *gin.Context) {
	rows, err := h.store.DailyReport(c.Request.Context(), h.now(), h.loc, reportDays)
	if err != nil {
		internalError(c, "Failed to build daily report", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// MonthlyReport handles GET /api/admin/reports/monthly.
func (h *Handler) MonthlyReport(c *gin.Context) {
	rows, err := h.store.MonthlyReport(c.Request.Context(), h.now(), h.loc, reportMonths)
	if err != nil {
		internalError(c, "Failed to build monthly report", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// DaySessions handles GET /api/admin/reports/daily/:date (YYYY-MM-DD).
func (h *Handler) DaySessions(c *gin.Context) {
	day, err := time.ParseInLocation("2006-01-02", c.Param("date"), h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	h.sessionsBetween(c, day, day.AddDate(0, 0, 1))
}

// MonthSessions handles GET /api/admin/reports/monthly/:month (YYYY-MM).
func (h *Handler) MonthSessions(c *gin.Context) {
	month, err := time.ParseInLocation("2006-01", c.Param("month"), h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
		return
	}
	h.sessionsBetween(c, month, month.AddDate(0, 1, 0))
}

func (h *Handler) sessionsBetween(c *gin.Context, from, to time.Time) {
	sessions, err := h.store.SessionsBetween(c.Request.Context(), from, to)
	if err != nil {
		internalError(c, "Failed to retrieve sessions", err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// Overstay handles GET /api/admin/overstay: vehicles still inside that
// entered before today.
func (h *Handler) Overstay(c *gin.Context) {
	sessions, err := h.store.Overstays(c.Request.Context(), store.StartOfDay(h.now(), h.loc))
	if err != nil {
		internalError(c, "Failed to retrieve overstays", err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}
