package api

import (
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/auth"
	"qr-parking-backend/internal/mw"
	"qr-parking-backend/internal/occupancy"
	"qr-parking-backend/internal/registration"
	"qr-parking-backend/internal/scan"
	"qr-parking-backend/internal/store"
)

// Deps are the services the API is built on.
type Deps struct {
	Store        store.Store
	Engine       *occupancy.Engine
	Gateway      *scan.Gateway
	Registration *registration.Service
	Auth         *auth.Service
	WebPush      *webpush.Options // nil when push is disabled
	Location     *time.Location
	CacheTTL     time.Duration
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	engine       *occupancy.Engine
	gateway      *scan.Gateway
	registration *registration.Service
	auth         *auth.Service
	webpush      *webpush.Options
	loc          *time.Location
	cache        *mw.ResponseCache
	now          func() time.Time
}

// NewHandler creates a new API handler. Cached area listings are dropped
// whenever a scan changes occupancy.
func NewHandler(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	ttl := d.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	h := &Handler{
		store:        d.Store,
		engine:       d.Engine,
		gateway:      d.Gateway,
		registration: d.Registration,
		auth:         d.Auth,
		webpush:      d.WebPush,
		loc:          loc,
		cache:        mw.NewResponseCache(ttl),
		now:          time.Now,
	}
	if h.gateway != nil {
		h.gateway.Subscribe(scan.ListenerFunc(func(res occupancy.Result) {
			if res.Mutated() {
				h.cache.Flush()
			}
		}))
	}
	return h
}

// internalError logs the cause and sends a generic 500.
func internalError(c *gin.Context, what string, err error) {
	log.Printf("%s %s: %s: %v", c.Request.Method, c.Request.URL.Path, what, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what})
}
