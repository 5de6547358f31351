// Package validation provides request validation helpers for the HTTP API.
package validation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 10000

// MaxIdentifierLength bounds identifiers such as user IDs and idempotency keys.
const MaxIdentifierLength = 255

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their failures. It returns nil when
// every validator passes so callers can use it as an error.
func Validate(validators ...func() *ValidationError) error {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// Present checks that an optional-typed field was supplied.
func Present[T any](field string, value *T) func() *ValidationError {
	return func() *ValidationError {
		if value == nil {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// NonNegative checks an integer field is zero or greater. A nil value passes;
// combine with Present for required fields.
func NonNegative(field string, value *int64) func() *ValidationError {
	return func() *ValidationError {
		if value != nil && *value < 0 {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// OneOf checks value is one of allowed.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// New returns a single-field validation failure.
func New(field, message string) error {
	return ValidationErrors{{Field: field, Message: message}}
}

// Respond writes a 422 body for err if it is a validation failure and reports
// whether it did.
func Respond(c *gin.Context, err error) bool {
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return false
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "validation",
		"field":   verrs[0].Field,
		"message": verrs.Error(),
		"details": verrs,
	})
	return true
}

// InvalidBody writes the 422 response for a body that could not be decoded.
func InvalidBody(c *gin.Context) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error":   "validation",
		"message": "Invalid request body",
	})
}
