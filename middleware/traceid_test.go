package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTraceRouter(capture *string) *gin.Engine {
	eng := gin.New()
	eng.Use(TraceID())
	eng.GET("/", func(c *gin.Context) {
		*capture = GetTraceID(c)
		c.Status(http.StatusOK)
	})
	return eng
}

func TestTraceID_Generated(t *testing.T) {
	var got string
	r := newTraceRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotEmpty(t, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
	assert.Equal(t, got, w.Header().Get(TraceIDHeader))
}

func TestTraceID_HonorsValidInbound(t *testing.T) {
	var got string
	r := newTraceRouter(&got)

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, inbound)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, inbound, got)
	assert.Equal(t, inbound, w.Header().Get(TraceIDHeader))
}

func TestTraceID_RejectsGarbageInbound(t *testing.T) {
	var got string
	r := newTraceRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid\nInjected: header")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEqual(t, "not-a-uuid\nInjected: header", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}
