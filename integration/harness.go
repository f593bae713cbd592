package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/nvoropaev/concord/api/rest"
	"github.com/nvoropaev/concord/api/sse"
	apows "github.com/nvoropaev/concord/api/ws"
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

// Harness runs the full HTTP/WS surface against in-memory backends, wired
// the same way main.go wires the production server.
type Harness struct {
	Server    *httptest.Server
	DB        *gorm.DB
	Cache     cache.Cache
	Sanctions *moderation.Registry
	Ledger    *chat.Ledger
	SM        *realtime.SessionManager
}

// NewHarness builds and starts a test server. Everything is torn down via
// t.Cleanup.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret: "integration-secret",
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
	t.Cleanup(sm.CloseAll)

	authH := apirest.NewAuthHandler(db, c, sanctions, sec)
	socialH := apirest.NewSocialHandler(socialMgr, sm, bc, logger)
	msgH := apirest.NewMessagesHandler(ledger, bc, logger)
	adminH := apirest.NewAdminHandler(db, sanctions, auditSvc, sm, bc, pubsub, 100, logger)

	r := gin.New()
	r.Use(mw.TraceID())

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

	wsRouter := apows.NewRouter(logger)
	apows.RegisterChatHandlers(wsRouter, ledger, bc, logger)
	wsH := apows.NewHandler(db, c, sec, sm, bc, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &Harness{
		Server:    srv,
		DB:        db,
		Cache:     c,
		Sanctions: sanctions,
		Ledger:    ledger,
		SM:        sm,
	}
}

// Login registers (or authenticates) a user through the real endpoint and
// returns the session token and user ID.
func (h *Harness) Login(t *testing.T, username, password string) (string, int64) {
	t.Helper()
	resp := h.Do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Token, body.User.ID
}

// MakeAdmin flips the is_admin flag for an existing user.
func (h *Harness) MakeAdmin(t *testing.T, userID int64) {
	t.Helper()
	require.NoError(t, h.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("is_admin", true).Error)
}

// Do performs a JSON request against the running server.
func (h *Harness) Do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.Server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// DecodeBody reads and unmarshals a response body, then closes it.
func DecodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
}

// Dial opens a WebSocket connection authenticated with the given token.
func (h *Harness) Dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "ws dial")
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// WriteEvent sends one socket packet.
func WriteEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(realtime.Event{
		Type:    eventType,
		Payload: raw,
	}))
}

// WaitOnline blocks until the user's session shows up in the session manager.
func (h *Harness) WaitOnline(t *testing.T, userID int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.SM.IsOnline(userID) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %d never came online", userID)
}

// ReadUntil reads socket events, discarding types other than want, until the
// wanted event arrives or the deadline passes.
func ReadUntil(t *testing.T, conn *websocket.Conn, want string) *realtime.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for time.Now().Before(deadline) {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("reading socket waiting for %q: %v", want, err)
		}
		if ev.Type == want {
			return &ev
		}
	}
	t.Fatalf("no %q event before deadline", want)
	return nil
}
