package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"qr-parking-backend/config"
	"qr-parking-backend/internal/live"
	"qr-parking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. hub may be nil, in
// which case the live feed is not served.
func NewRouter(h *Handler, cfg config.ServerConfig, hub *live.Hub) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))
	caching := h.cache.Handler()
	requireAdmin := mw.RequireAdmin(h.auth)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/scan", h.ScanPlate)
		api.POST("/areas/:area_code/scan", h.ScanArea)

		api.GET("/areas", caching, h.ListAreas)
		api.GET("/areas/:area_code", caching, h.GetArea)
		api.GET("/areas/:area_code/vehicles", h.AreaVehicles)

		api.POST("/vehicles", h.RegisterVehicle)
		api.GET("/vehicles/:plate/qr", h.GetVehicleQR)

		api.GET("/search", h.Search)
		api.GET("/sessions", h.ListSessions)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

		api.POST("/admin/login", h.Login)
	}

	if hub != nil {
		r.GET("/api/live", hub.ServeWS)
	}

	admin := api.Group("/admin")
	admin.Use(requireAdmin)
	{
		admin.GET("/vehicles", h.ListVehicles)
		admin.DELETE("/vehicles/:plate", h.DeleteVehicle)
		admin.PUT("/areas", h.PutArea)
		admin.POST("/areas/recount", h.RecountAreas)

		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/reports/daily", h.DailyReport)
		admin.GET("/reports/monthly", h.MonthlyReport)
		admin.GET("/reports/daily/:date", h.DaySessions)
		admin.GET("/reports/monthly/:month", h.MonthSessions)
		admin.GET("/overstay", h.Overstay)
	}

	return r
}
