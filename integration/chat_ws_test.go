package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Messages posted over the socket land in the room history and reach every
// online member, including the sender.
func TestChatOverWS(t *testing.T) {
	ts := NewTestServer(t)

	aliceToken, _ := ts.Register(t, UniqueID("alice")+"@example.com", UniqueID("alice"), "password1")
	bobToken, bobID := ts.Register(t, UniqueID("bob")+"@example.com", UniqueID("bob"), "password1")

	// Alice creates the room (and becomes a member), Bob joins over REST.
	resp := ts.PostJSON(t, "/api/chat/rooms", map[string]string{"name": "lounge"}, aliceToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]map[string]interface{}
	ReadJSON(t, resp, &created)
	roomID := int64(created["room"]["id"].(float64))

	resp = ts.PostJSON(t, "/api/chat/rooms/"+itoa(roomID)+"/join", nil, bobToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	alice := ts.ConnectWS(t, aliceToken)
	defer alice.Close()
	bob := ts.ConnectWS(t, bobToken)
	defer bob.Close()

	bob.Send("chat_message", map[string]interface{}{
		"room_id": roomID,
		"content": "hello from the socket",
	})

	for name, client := range map[string]*WSClient{"alice": alice, "bob": bob} {
		msg := client.RecvType("chat_message", 3*time.Second)
		payload, ok := msg["message"].(map[string]interface{})
		require.True(t, ok, "%s: missing message payload: %v", name, msg)
		assert.Equal(t, float64(roomID), payload["room_id"], name)
		assert.Equal(t, float64(bobID), payload["sender_id"], name)
		assert.Equal(t, "hello from the socket", payload["content"], name)
	}

	// The message is in the persistent history.
	resp = ts.Get(t, "/api/chat/rooms/"+itoa(roomID)+"/messages", aliceToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history map[string][]map[string]interface{}
	ReadJSON(t, resp, &history)
	require.Len(t, history["messages"], 1)
	assert.Equal(t, "hello from the socket", history["messages"][0]["content"])
	assert.Equal(t, float64(bobID), history["messages"][0]["sender_id"])
}

// A sender who never joined the room gets an error frame and nothing is
// persisted or fanned out.
func TestChatOverWS_NonMemberRejected(t *testing.T) {
	ts := NewTestServer(t)

	aliceToken, _ := ts.Register(t, UniqueID("alice")+"@example.com", UniqueID("alice"), "password1")
	bobToken, _ := ts.Register(t, UniqueID("bob")+"@example.com", UniqueID("bob"), "password1")

	resp := ts.PostJSON(t, "/api/chat/rooms", map[string]string{"name": "private"}, aliceToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]map[string]interface{}
	ReadJSON(t, resp, &created)
	roomID := int64(created["room"]["id"].(float64))

	bob := ts.ConnectWS(t, bobToken)
	defer bob.Close()

	bob.Send("chat_message", map[string]interface{}{
		"room_id": roomID,
		"content": "let me in",
	})
	errMsg := bob.RecvType("error", 3*time.Second)
	assert.Equal(t, "not_a_member", errMsg["error"])

	bob.Send("chat_message", map[string]interface{}{
		"room_id": int64(99999),
		"content": "anyone here?",
	})
	errMsg = bob.RecvType("error", 3*time.Second)
	assert.Equal(t, "room_not_found", errMsg["error"])

	resp = ts.Get(t, "/api/chat/rooms/"+itoa(roomID)+"/messages", aliceToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history map[string][]map[string]interface{}
	ReadJSON(t, resp, &history)
	assert.Empty(t, history["messages"])
}
