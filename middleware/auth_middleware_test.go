package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/cache"
	"github.com/nvoropaev/concord/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type authFixture struct {
	router *gin.Engine
	cache  cache.Cache
	sec    config.SecurityConfig
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := cache.NewCache(cache.Config{})
	require.NoError(t, err)

	f := &authFixture{
		cache: c,
		sec:   config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour},
	}
	f.router = gin.New()
	f.router.Use(Auth(f.sec, c))
	f.router.GET("/protected", func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})
	return f
}

// login mints a JWT for the given user and backs it with a session key,
// mirroring what the auth endpoint does on a successful login.
func (f *authFixture) login(t *testing.T, userID int64, username string) string {
	t.Helper()
	token, err := GenerateToken(userID, username, f.sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(context.Background(), "session:"+token, username, time.Hour))
	return token
}

func (f *authFixture) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAuthRejections(t *testing.T) {
	f := newAuthFixture(t)

	t.Run("no header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.get("/protected", "").Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.get("/protected", "notavalidtoken").Code)
	})

	t.Run("signed token without session", func(t *testing.T) {
		// Token validates against the secret but the session key was
		// never written, as after a server-side logout.
		token, err := GenerateToken(42, "alice", f.sec.JWTSecret, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, f.get("/protected", token).Code)
	})
}

func TestAuthAcceptsLiveSession(t *testing.T) {
	f := newAuthFixture(t)
	token := f.login(t, 42, "alice")
	assert.Equal(t, http.StatusOK, f.get("/protected", token).Code)
}

func TestAuthSlidesSessionExpiry(t *testing.T) {
	f := newAuthFixture(t)
	token, err := GenerateToken(42, "alice", f.sec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(context.Background(),
		"session:"+token, "42", 150*time.Millisecond))

	require.Equal(t, http.StatusOK, f.get("/protected", token).Code)

	// Past the original TTL, but the hit above renewed the session.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, http.StatusOK, f.get("/protected", token).Code)
}

func TestAuthExposesIdentity(t *testing.T) {
	f := newAuthFixture(t)

	var gotUserID int64
	var gotUsername string
	f.router.GET("/me", func(ctx *gin.Context) {
		gotUserID = GetUserID(ctx)
		gotUsername = GetUsername(ctx)
		ctx.Status(http.StatusOK)
	})

	token := f.login(t, 42, "alice")
	assert.Equal(t, http.StatusOK, f.get("/me", token).Code)
	assert.Equal(t, int64(42), gotUserID)
	assert.Equal(t, "alice", gotUsername)
}

func TestGetUserIDUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, int64(0), GetUserID(c))
}

func TestRecoveryLogsAndResponds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "boom", entry.ContextMap()["panic"])
	assert.Equal(t, "/boom", entry.ContextMap()["path"])
}

func TestLoggerEmitsRequestFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "GET", entry.ContextMap()["method"])
	assert.Equal(t, "/ping", entry.ContextMap()["path"])
	assert.Equal(t, int64(http.StatusOK), entry.ContextMap()["status"])
	assert.NotEmpty(t, entry.ContextMap()["trace_id"])

	// Health probes stay out of the log.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, 1, logs.Len())
}
