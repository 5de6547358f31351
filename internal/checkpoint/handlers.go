package checkpoint

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chibuike-kt/risk-engine/internal/logging"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

// Handler provides HTTP endpoints for audit checkpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new checkpoint handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up checkpoint routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/audit/checkpoint", h.Create)
	r.POST("/audit/checkpoint/signed", h.CreateSigned)
	r.POST("/audit/checkpoint/verify", h.Verify)
	r.GET("/audit/checkpoint", h.Get)
}

// Create handles POST /audit/checkpoint
func (h *Handler) Create(c *gin.Context) {
	cp, err := h.service.Create(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint": cp})
}

// CreateSigned handles POST /audit/checkpoint/signed
func (h *Handler) CreateSigned(c *gin.Context) {
	signed, err := h.service.CreateSigned(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signed)
}

// Verify handles POST /audit/checkpoint/verify
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.InvalidBody(c)
		return
	}

	ok, err := h.service.VerifySignature(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

// Get handles GET /audit/checkpoint?day=YYYY-MM-DD
func (h *Handler) Get(c *gin.Context) {
	cp, err := h.service.Get(c.Request.Context(), c.Query("day"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint": cp})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if validation.Respond(c, err) {
		return
	}

	var chainErr *ChainInvalidError
	switch {
	case errors.As(err, &chainErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "audit_chain_invalid",
			"message": chainErr.Error(),
			"details": chainErr.Result,
		})
	case errors.Is(err, ErrSignerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "signer_unavailable",
			"message": "Checkpoint signing key is not configured",
		})
	case errors.Is(err, ErrNoPublicKey):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "no_public_key_available",
			"message": "Supply public_key_pem or configure a local key",
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Checkpoint not found",
		})
	default:
		logging.L(c.Request.Context()).Error("checkpoint request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Checkpoint operation failed",
		})
	}
}
