package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/nvoropaev/concord/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendshipLifecycle(t *testing.T) {
	h := NewHarness(t)
	aliceTok, aliceID := h.Login(t, "alice", "hunter2")
	bobTok, bobID := h.Login(t, "bob", "hunter2")

	// Alice sends a request.
	resp := h.Do(t, http.MethodPost, "/api/friends/request", aliceTok,
		map[string]int64{"targetId": bobID})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Bob sees it pending.
	var pending struct {
		Requests []struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"requests"`
	}
	DecodeBody(t, h.Do(t, http.MethodGet, "/api/friends/pending", bobTok, nil), &pending)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, aliceID, pending.Requests[0].ID)
	assert.Equal(t, "alice", pending.Requests[0].Username)

	// Bob accepts; the friendship is symmetric.
	resp = h.Do(t, http.MethodPost, "/api/friends/accept", bobTok,
		map[string]int64{"userId": aliceID})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	type friendList struct {
		Friends []struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"friends"`
	}
	var aliceFriends, bobFriends friendList
	DecodeBody(t, h.Do(t, http.MethodGet, "/api/friends", aliceTok, nil), &aliceFriends)
	DecodeBody(t, h.Do(t, http.MethodGet, "/api/friends", bobTok, nil), &bobFriends)
	require.Len(t, aliceFriends.Friends, 1)
	require.Len(t, bobFriends.Friends, 1)
	assert.Equal(t, "bob", aliceFriends.Friends[0].Username)
	assert.Equal(t, "alice", bobFriends.Friends[0].Username)

	// Removal clears both sides.
	resp = h.Do(t, http.MethodDelete, fmt.Sprintf("/api/friends/%d", bobID), aliceTok, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	DecodeBody(t, h.Do(t, http.MethodGet, "/api/friends", aliceTok, nil), &aliceFriends)
	DecodeBody(t, h.Do(t, http.MethodGet, "/api/friends", bobTok, nil), &bobFriends)
	assert.Empty(t, aliceFriends.Friends)
	assert.Empty(t, bobFriends.Friends)
}

func TestChatOverWebSocket(t *testing.T) {
	h := NewHarness(t)
	aliceTok, _ := h.Login(t, "alice", "hunter2")
	bobTok, _ := h.Login(t, "bob", "hunter2")

	aliceConn := h.Dial(t, aliceTok)
	bobConn := h.Dial(t, bobTok)

	WriteEvent(t, aliceConn, "join-channel", map[string]int64{"channelId": 1})
	WriteEvent(t, bobConn, "join-channel", map[string]int64{"channelId": 1})

	// Joins are processed in order per connection; a typing echo back to bob
	// confirms his subscription is live before alice sends.
	WriteEvent(t, bobConn, "typing-start", map[string]int64{"channelId": 1})
	ReadUntil(t, bobConn, realtime.EventUserTyping)

	WriteEvent(t, aliceConn, "send-message", map[string]interface{}{
		"channelId": 1,
		"content":   "hello bob",
	})

	aliceEv := ReadUntil(t, aliceConn, realtime.EventNewMessage)
	bobEv := ReadUntil(t, bobConn, realtime.EventNewMessage)

	var view struct {
		Content  string `json:"content"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(bobEv.Payload, &view))
	assert.Equal(t, "hello bob", view.Content)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, aliceEv.Seq, bobEv.Seq)

	// History is visible over REST afterwards.
	var list struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	DecodeBody(t, h.Do(t, http.MethodGet, "/api/messages?channelId=1", bobTok, nil), &list)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "hello bob", list.Messages[0].Content)
}

func TestModerationFlow(t *testing.T) {
	h := NewHarness(t)
	adminTok, adminID := h.Login(t, "root", "hunter2")
	h.MakeAdmin(t, adminID)
	loudTok, loudID := h.Login(t, "loud", "hunter2")

	loudConn := h.Dial(t, loudTok)
	h.WaitOnline(t, loudID)
	WriteEvent(t, loudConn, "join-channel", map[string]int64{"channelId": 1})

	// Admin mutes the user; the user's socket gets told.
	resp := h.Do(t, http.MethodPost, "/api/admin/mute", adminTok, map[string]interface{}{
		"userId":   loudID,
		"reason":   "flood",
		"duration": 30,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ReadUntil(t, loudConn, realtime.EventUserMuted)

	// Sending over the socket now yields an error event, not a message.
	WriteEvent(t, loudConn, "send-message", map[string]interface{}{
		"channelId": 1,
		"content":   "still here",
	})
	ev := ReadUntil(t, loudConn, realtime.EventErrorMessage)
	var errPayload struct {
		Error     string `json:"error"`
		Remaining int64  `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &errPayload))
	assert.Equal(t, "muted", errPayload.Error)
	assert.Greater(t, errPayload.Remaining, int64(0))

	// REST agrees.
	resp = h.Do(t, http.MethodPost, "/api/messages", loudTok, map[string]interface{}{
		"channelId": 1,
		"content":   "over http then",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAnnouncementReachesEveryone(t *testing.T) {
	h := NewHarness(t)
	adminTok, adminID := h.Login(t, "root", "hunter2")
	h.MakeAdmin(t, adminID)
	aliceTok, aliceID := h.Login(t, "alice", "hunter2")
	bobTok, bobID := h.Login(t, "bob", "hunter2")

	aliceConn := h.Dial(t, aliceTok)
	bobConn := h.Dial(t, bobTok)
	h.WaitOnline(t, aliceID)
	h.WaitOnline(t, bobID)

	resp := h.Do(t, http.MethodPost, "/api/admin/announce", adminTok, map[string]string{
		"text": "downtime at 02:00",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	aliceEv := ReadUntil(t, aliceConn, realtime.EventAnnouncement)
	bobEv := ReadUntil(t, bobConn, realtime.EventAnnouncement)

	var text struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(aliceEv.Payload, &text))
	assert.Equal(t, "downtime at 02:00", text.Text)
	require.NoError(t, json.Unmarshal(bobEv.Payload, &text))
	assert.Equal(t, "downtime at 02:00", text.Text)
}
