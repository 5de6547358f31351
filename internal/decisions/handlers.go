package decisions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chibuike-kt/risk-engine/internal/logging"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

// IdempotencyHeader carries the idempotency key; it wins over the body field.
const IdempotencyHeader = "Idempotency-Key"

// ActorHeader names the reviewer resolving a case.
const ActorHeader = "X-Actor"

// Handler provides HTTP endpoints for decisions and cases.
type Handler struct {
	service *Service
}

// NewHandler creates a new decisions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up decision and case routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/evaluate", h.Evaluate)
	r.GET("/cases", h.ListCases)
	r.GET("/cases/:id", h.GetCase)
	r.POST("/cases/:id/resolve", h.ResolveCase)
}

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	UserID         string  `json:"user_id"`
	Action         string  `json:"action"`
	AmountMinor    *int64  `json:"amount_minor"`
	Currency       string  `json:"currency"`
	Counterparty   string  `json:"counterparty"`
	Country        *string `json:"country"`
	DeviceID       *string `json:"device_id"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// Evaluate handles POST /evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.InvalidBody(c)
		return
	}
	if err := validation.Validate(validation.Present("amount_minor", req.AmountMinor)); err != nil {
		validation.Respond(c, err)
		return
	}

	key := c.GetHeader(IdempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.service.Evaluate(c.Request.Context(), key, Input{
		UserID:       req.UserID,
		Action:       req.Action,
		AmountMinor:  *req.AmountMinor,
		Currency:     req.Currency,
		Counterparty: req.Counterparty,
		Country:      req.Country,
		DeviceID:     req.DeviceID,
	})
	if err != nil {
		h.writeError(c, err, "Failed to evaluate action")
		return
	}

	if res.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.Body)
}

// ListCases handles GET /cases
func (h *Handler) ListCases(c *gin.Context) {
	page, err := h.service.ListCases(c.Request.Context(), c.Query("status"), c.Query("cursor"))
	if err != nil {
		h.writeError(c, err, "Failed to list cases")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetCase handles GET /cases/:id
func (h *Handler) GetCase(c *gin.Context) {
	found, err := h.service.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "Failed to get case")
		return
	}
	c.JSON(http.StatusOK, gin.H{"case": found})
}

// ResolveRequest is the body of POST /cases/:id/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
	Notes      string `json:"notes"`
}

// ResolveCase handles POST /cases/:id/resolve
func (h *Handler) ResolveCase(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validation.InvalidBody(c)
		return
	}

	err := h.service.ResolveCase(c.Request.Context(), c.Param("id"), req.Resolution, req.Notes, c.GetHeader(ActorHeader))
	if err != nil {
		h.writeError(c, err, "Failed to resolve case")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) writeError(c *gin.Context, err error, message string) {
	if validation.Respond(c, err) {
		return
	}
	switch {
	case errors.Is(err, ErrIdempotencyConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "idempotency_conflict",
			"message": err.Error(),
		})
	case errors.Is(err, ErrCaseNotOpen):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "case_not_open_or_missing",
			"message": err.Error(),
		})
	case errors.Is(err, ErrCaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Case not found",
		})
	default:
		logging.L(c.Request.Context()).Error(message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": message,
		})
	}
}
