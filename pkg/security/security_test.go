package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func serve(r http.Handler, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"https://eval.example.edu/"}))

	w := serve(r, http.MethodGet, "https://eval.example.edu")
	assert.Equal(t, "https://eval.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	w = serve(r, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodOptions, "https://eval.example.edu")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	wildcard := newRouter(CORS([]string{"*"}))
	w = serve(wildcard, http.MethodGet, "https://anywhere.example")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSecureHeaders(t *testing.T) {
	w := serve(newRouter(Secure()), http.MethodGet, "")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS only over TLS")
}

func TestLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, time.Minute))

	l := NewLimiter(2, time.Minute)
	require.NotNil(t, l)
	now := time.Now()
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.False(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.2", now), "limits are per client")
	assert.True(t, l.Allow("10.0.0.1", now.Add(31*time.Second)), "tokens refill over the window")

	assert.Zero(t, l.Sweep(now.Add(time.Minute)))
	assert.Equal(t, 2, l.Sweep(now.Add(10*time.Minute)))

	l.Close()
	l.Close()
	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestLimiterMiddleware(t *testing.T) {
	r := newRouter(NewLimiter(1, time.Hour).Middleware())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "").Code)
	w := serve(r, http.MethodGet, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"code":"RATE_LIMITED","message":"too many requests"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var disabled *Limiter
	open := newRouter(disabled.Middleware())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(open, http.MethodGet, "").Code)
	}
}
