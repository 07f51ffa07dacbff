package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/qianlnk/onenight/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observe(t *testing.T, wm *WebSocketManager, gameID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = wm.Handle(w, r, gameID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketManager_Broadcast(t *testing.T) {
	wm := NewWebSocketManager()
	conn := observe(t, wm, "g1")
	other := observe(t, wm, "g2")

	require.Eventually(t, func() bool {
		return wm.ObserverCount("g1") == 1 && wm.ObserverCount("g2") == 1
	}, time.Second, 10*time.Millisecond)

	ev := models.GameEvent{ID: "e1", Kind: models.EventSpeech, Actor: "alice", Content: "hello"}
	wm.BroadcastToGame("g1", GameMessage{Type: MessageEvent, GameID: "g1", Event: &ev})
	wm.BroadcastToGame("g1", GameMessage{Type: MessagePhase, GameID: "g1", Phase: models.PhaseVote})

	var got GameMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, MessageEvent, got.Type)
	require.NotNil(t, got.Event)
	assert.Equal(t, ev, *got.Event)

	var phase GameMessage
	require.NoError(t, conn.ReadJSON(&phase))
	assert.Equal(t, MessagePhase, phase.Type)
	assert.Equal(t, models.PhaseVote, phase.Phase)
	assert.Nil(t, phase.Event)

	// the other game hears nothing
	require.NoError(t, other.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketManager_RemovesClosedObserver(t *testing.T) {
	wm := NewWebSocketManager()
	conn := observe(t, wm, "g1")

	require.Eventually(t, func() bool { return wm.ObserverCount("g1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return wm.ObserverCount("g1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketManager_RemovedObserverGetsCloseFrame(t *testing.T) {
	wm := NewWebSocketManager()
	conn := observe(t, wm, "g1")

	require.Eventually(t, func() bool { return wm.ObserverCount("g1") == 1 }, time.Second, 10*time.Millisecond)
	wm.mutex.RLock()
	var o *observer
	for candidate := range wm.games["g1"] {
		o = candidate
	}
	wm.mutex.RUnlock()
	wm.remove("g1", o)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
	assert.Zero(t, wm.ObserverCount("g1"))
}
