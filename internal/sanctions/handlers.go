package sanctions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chibuike-kt/risk-engine/internal/logging"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

// Handler provides HTTP endpoints for the sanctions list.
type Handler struct {
	service *Service
}

// NewHandler creates a new sanctions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up sanctions routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sanctions", h.Add)
}

// AddRequest is the body of POST /sanctions.
type AddRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Add handles POST /sanctions
func (h *Handler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.InvalidBody(c)
		return
	}

	if _, err := h.service.Add(c.Request.Context(), req.Kind, req.Value); err != nil {
		if validation.Respond(c, err) {
			return
		}
		logging.L(c.Request.Context()).Error("failed to add sanctions entry", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add sanctions entry",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true})
}
