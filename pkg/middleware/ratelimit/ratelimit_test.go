package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestLimiterRejectsOverBudget(t *testing.T) {
	r := newLimitedRouter(New(3, time.Hour))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234").Code)
	}

	w := hit(r, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
}

func TestLimiterKeysByClientIP(t *testing.T) {
	r := newLimitedRouter(New(1, time.Hour))

	require.Equal(t, http.StatusOK, hit(r, "10.0.0.1:1234").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.0.1:9999").Code)

	// a different client still has its full budget
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2:1234").Code)
}

func TestLimiterPrunesIdleClients(t *testing.T) {
	l := New(1, time.Minute)
	start := time.Now()

	require.True(t, l.allow("10.0.0.1", start))
	require.True(t, l.allow("10.0.0.2", start))

	// both buckets idle past the window; the next call prunes them
	l.allow("10.0.0.3", start.Add(3*time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.NotContains(t, l.clients, "10.0.0.2")
	assert.Contains(t, l.clients, "10.0.0.3")
}
