package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-parking-backend/internal/auth"
)

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/admin/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	token, expires, err := h.auth.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		log.Printf("Failed admin login from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect password"})
		return
	case errors.Is(err, auth.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login is not configured"})
		return
	case err != nil:
		internalError(c, "Failed to log in", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expires})
}
