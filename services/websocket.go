package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
)

const (
	writeTimeout  = 5 * time.Second
	pingInterval  = 15 * time.Second
	observerQueue = 64
)

// MessageType tags a message pushed to observers.
type MessageType string

const (
	MessageEvent MessageType = "event"
	MessagePhase MessageType = "phase"
)

// GameMessage is pushed to every observer of a game.
type GameMessage struct {
	Type   MessageType       `json:"type"`
	GameID string            `json:"game_id"`
	Event  *models.GameEvent `json:"event,omitempty"`
	Phase  string            `json:"phase,omitempty"`
}

type observer struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (o *observer) close() {
	o.closeOnce.Do(func() {
		close(o.send)
	})
}

// WebSocketManager pushes committed public events to the observers of each game.
type WebSocketManager struct {
	upgrader websocket.Upgrader
	games    map[string]map[*observer]struct{}
	mutex    sync.RWMutex
}

// NewWebSocketManager accepts observers from any origin.
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		games: make(map[string]map[*observer]struct{}),
	}
}

// Handle upgrades the request and registers the connection as an observer of gameID.
func (wm *WebSocketManager) Handle(w http.ResponseWriter, r *http.Request, gameID string) error {
	conn, err := wm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	o := &observer{conn: conn, send: make(chan []byte, observerQueue)}

	wm.mutex.Lock()
	if _, ok := wm.games[gameID]; !ok {
		wm.games[gameID] = make(map[*observer]struct{})
	}
	wm.games[gameID][o] = struct{}{}
	wm.mutex.Unlock()

	logger.Log.Debugw("observer connected", "game", gameID)
	go wm.writePump(gameID, o)
	go wm.readPump(gameID, o)
	return nil
}

// BroadcastToGame sends message to every observer of gameID. Observers that
// cannot keep up are dropped.
func (wm *WebSocketManager) BroadcastToGame(gameID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Warnw("failed to encode message", "game", gameID, "err", err)
		return
	}

	wm.mutex.RLock()
	var slow []*observer
	for o := range wm.games[gameID] {
		select {
		case o.send <- data:
		default:
			slow = append(slow, o)
		}
	}
	wm.mutex.RUnlock()

	for _, o := range slow {
		logger.Log.Warnw("observer too slow, dropping", "game", gameID)
		wm.remove(gameID, o)
	}
}

// ObserverCount returns how many observers are attached to gameID.
func (wm *WebSocketManager) ObserverCount(gameID string) int {
	wm.mutex.RLock()
	defer wm.mutex.RUnlock()
	return len(wm.games[gameID])
}

func (wm *WebSocketManager) remove(gameID string, o *observer) {
	wm.mutex.Lock()
	if observers, ok := wm.games[gameID]; ok {
		if _, ok := observers[o]; ok {
			delete(observers, o)
			o.close()
		}
		if len(observers) == 0 {
			delete(wm.games, gameID)
		}
	}
	wm.mutex.Unlock()
}

func (wm *WebSocketManager) writePump(gameID string, o *observer) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = o.conn.Close()
	}()

	for {
		select {
		case data, ok := <-o.send:
			if !ok {
				// the peer may already be gone
				_ = o.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
				return
			}
			if err := o.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				logger.Log.Debugw("observer deadline failed", "game", gameID, "err", err)
				wm.remove(gameID, o)
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Debugw("observer write failed", "game", gameID, "err", err)
				wm.remove(gameID, o)
				return
			}
		case <-ticker.C:
			if err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Log.Debugw("observer ping failed", "game", gameID, "err", err)
				wm.remove(gameID, o)
				return
			}
		}
	}
}

// readPump discards client messages and notices when the peer goes away.
func (wm *WebSocketManager) readPump(gameID string, o *observer) {
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			wm.remove(gameID, o)
			return
		}
	}
}
