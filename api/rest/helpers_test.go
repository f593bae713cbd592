package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvoropaev/concord/audit"
	"github.com/nvoropaev/concord/cache"
	"github.com/nvoropaev/concord/chat"
	"github.com/nvoropaev/concord/config"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/moderation"
	"github.com/nvoropaev/concord/realtime"
	"github.com/nvoropaev/concord/social"
	"github.com/nvoropaev/concord/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testEnv wires the REST surface against in-memory backends, mirroring the
// dependency graph in main.go.
type testEnv struct {
	db        *gorm.DB
	cache     cache.Cache
	sm        *realtime.SessionManager
	bc        *realtime.Broadcaster
	sanctions *moderation.Registry
	ledger    *chat.Ledger
	audit     *audit.Service
	router    *gin.Engine
	sec       config.SecurityConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret: "rest-test-secret",
		JWTTTLH:   time.Hour,
	}

	auditSvc := audit.New(db, logger)
	sanctions := moderation.New(db, auditSvc, logger)
	socialMgr := social.New(db, logger)
	ledger := chat.New(db, sanctions, chat.Limits{}, logger)

	sm := realtime.NewSessionManager(logger)
	bc := realtime.NewBroadcaster(sm, pubsub, logger)
	require.NoError(t, bc.Start(context.Background()))
	t.Cleanup(bc.Close)

	authH := NewAuthHandler(db, c, sanctions, sec)
	socialH := NewSocialHandler(socialMgr, sm, bc, logger)
	msgH := NewMessagesHandler(ledger, bc, logger)
	adminH := NewAdminHandler(db, sanctions, auditSvc, sm, bc, pubsub, 100, logger)

	r := gin.New()
	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(sec, c))
		friendsG.GET("", socialH.ListFriends)
		friendsG.GET("/pending", socialH.ListPending)
		friendsG.POST("/request", socialH.SendRequest)
		friendsG.POST("/accept", socialH.AcceptRequest)
		friendsG.POST("/reject", socialH.RejectRequest)
		friendsG.DELETE("/:id", socialH.RemoveFriend)

		msgG := api.Group("/messages")
		msgG.Use(mw.Auth(sec, c))
		msgG.GET("", msgH.List)
		msgG.POST("", msgH.Create)
		msgG.GET("/pinned", msgH.ListPinned)
		msgG.GET("/search", msgH.Search)
		msgG.PUT("/:id", msgH.Edit)
		msgG.DELETE("/:id", msgH.Delete)
		msgG.POST("/:id/pin", msgH.Pin)
		msgG.POST("/:id/unpin", msgH.Unpin)

		adminG := api.Group("/admin")
		adminG.Use(mw.Auth(sec, c), mw.AdminAuth(db))
		adminG.POST("/ban", adminH.Ban)
		adminG.POST("/unban", adminH.Unban)
		adminG.POST("/mute", adminH.Mute)
		adminG.POST("/unmute", adminH.Unmute)
		adminG.GET("/banned", adminH.ListBanned)
		adminG.GET("/muted", adminH.ListMuted)
		adminG.GET("/logs", adminH.ListLogs)
		adminG.GET("/users", adminH.ListUsers)
		adminG.POST("/announce", adminH.Announce)
	}

	return &testEnv{
		db:        db,
		cache:     c,
		sm:        sm,
		bc:        bc,
		sanctions: sanctions,
		ledger:    ledger,
		audit:     auditSvc,
		router:    r,
		sec:       sec,
	}
}

// seedUser registers a user and returns it with a valid session token.
func (e *testEnv) seedUser(t *testing.T, username string, isAdmin bool) (*model.User, string) {
	t.Helper()
	u := testutil.SeedUser(t, e.db, username)
	if isAdmin {
		require.NoError(t, e.db.Model(u).Update("is_admin", true).Error)
	}
	token, err := mw.GenerateToken(u.ID, u.Username, e.sec.JWTSecret, e.sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, e.cache.Set(context.Background(),
		"session:"+token, strconv.FormatInt(u.ID, 10), e.sec.JWTTTLH))
	return u, token
}

// do performs a JSON request against the test router.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// decode unmarshals a response body into out.
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out),
		"body: %s", w.Body.String())
}
