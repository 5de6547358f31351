package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(mw gin.HandlerFunc, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.POST("/evaluate", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(method, "/evaluate", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware_LocksDownJSONResponses(t *testing.T) {
	w := serve(HeadersMiddleware(), http.MethodPost, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestCORSMiddleware_Origins(t *testing.T) {
	cases := map[string]struct {
		allowed     []string
		origin      string
		wantOrigin  string
		wantCredits bool
	}{
		"listed origin echoed":      {[]string{"https://ops.example"}, "https://ops.example", "https://ops.example", true},
		"unlisted origin ignored":   {[]string{"https://ops.example"}, "https://other.example", "", false},
		"wildcard without creds":    {[]string{"*"}, "https://any.example", "https://any.example", false},
		"empty list allows all":     {nil, "https://any.example", "https://any.example", true},
		"no origin sends no header": {[]string{"*"}, "", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(CORSMiddleware(tc.allowed), http.MethodPost, tc.origin)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tc.wantCredits, w.Header().Get("Access-Control-Allow-Credentials") == "true")
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	w := serve(CORSMiddleware([]string{"*"}), http.MethodOptions, "https://ops.example")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "Idempotency-Key")
	assert.Contains(t, allowed, "X-Actor")
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Idempotent-Replayed")
}
