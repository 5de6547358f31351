package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chibuike-kt/risk-engine/internal/logging"
)

// Handler exposes chain verification over HTTP.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new audit handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up audit routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit/verify", h.Verify)
}

// Verify handles GET /audit/verify. A broken chain is still a 200: the body
// is the diagnostic.
func (h *Handler) Verify(c *gin.Context) {
	result, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("audit verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Audit verification failed",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
