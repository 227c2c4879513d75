package mw

import (
	"bytes"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// recordingWriter tees the response body so it can be replayed.
type recordingWriter struct {
	gin.ResponseWriter
	recorded bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.recorded.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.recorded.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps successful GET responses for a short time. Occupancy
// changes call Flush so readers never see a stale count for longer than one scan.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
	// generation advances on every Flush; a response rendered across a
	// flush may hold pre-flush state and is not stored.
	generation atomic.Uint64
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	rc.generation.Add(1)
	rc.store.Flush()
}

// Handler is the caching middleware.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if hit, found := rc.store.Get(key); found {
			replay(c, hit.(cachedResponse))
			return
		}

		started := rc.generation.Load()
		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		if rc.generation.Load() != started {
			return
		}
		if status := rw.Status(); status >= 200 && status < 300 {
			rc.store.Set(key, cachedResponse{
				status:  status,
				headers: rw.Header().Clone(),
				body:    rw.recorded.Bytes(),
			}, rc.ttl)
		}
	}
}

func replay(c *gin.Context, resp cachedResponse) {
	header := c.Writer.Header()
	for k, v := range resp.headers {
		header[k] = v
	}
	header.Set("X-Cache", "HIT")
	c.Writer.WriteHeader(resp.status)
	_, _ = c.Writer.Write(resp.body)
	c.Abort()
}
