package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/qianlnk/onenight/config"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	b, err := newBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return newRouter(b)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createGame(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/games", services.CreateGameRequest{
		Players: []string{"alice", "bob", "carol", "dave", "erin"},
		Seed:    12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID    string            `json:"id"`
		World models.WorldState `json:"world"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, models.PhaseNight, resp.World.Phase)
	return resp.ID
}

func TestAPI_GameLifecycle(t *testing.T) {
	r := testRouter(t)
	id := createGame(t, r)

	w := do(t, r, http.MethodPost, "/api/games/"+id+"/step", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report services.StepReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, models.PhaseNight, report.Phase)

	w = do(t, r, http.MethodPost, "/api/games/"+id+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/games/"+id+"/speech", gin.H{"player": "alice", "text": "bob is lying"})
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/games/"+id+"/players/bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view services.PlayerView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "bob", view.Memory.Self)

	w = do(t, r, http.MethodPost, "/api/games/"+id+"/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run struct {
		Result *models.GameResult `json:"result"`
		Steps  int                `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.NotNil(t, run.Result)

	w = do(t, r, http.MethodGet, "/api/games/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var world models.WorldState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &world))
	assert.Equal(t, models.PhaseResult, world.Phase)
	assert.Equal(t, run.Result, world.Result)

	w = do(t, r, http.MethodPost, "/api/games/"+id+"/step", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, r, http.MethodPost, "/api/games/"+id+"/speech", gin.H{"player": "alice", "text": "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodDelete, "/api/games/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/api/games/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Errors(t *testing.T) {
	r := testRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"missing players", http.MethodPost, "/api/games", gin.H{}, http.StatusBadRequest},
		{"too few players", http.MethodPost, "/api/games", gin.H{"players": []string{"a", "b"}}, http.StatusBadRequest},
		{"unknown mode", http.MethodPost, "/api/games", gin.H{"players": []string{"a", "b", "c", "d"}, "mode": "chaos"}, http.StatusBadRequest},
		{"unknown game", http.MethodGet, "/api/games/nope", nil, http.StatusNotFound},
		{"step unknown game", http.MethodPost, "/api/games/nope/step", nil, http.StatusNotFound},
		{"observe without game", http.MethodGet, "/ws", nil, http.StatusBadRequest},
		{"observe unknown game", http.MethodGet, "/ws?game=nope", nil, http.StatusNotFound},
		{"archive not configured", http.MethodGet, "/api/archive/nope", nil, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	id := createGame(t, r)
	w := do(t, r, http.MethodPost, "/api/games/"+id+"/speech", gin.H{"player": "alice", "text": "hi"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, r, http.MethodGet, "/api/games/"+id+"/players/zed", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Metrics(t *testing.T) {
	r := testRouter(t)
	createGame(t, r)

	w := do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "onenight_active_games 1"))
}

func TestPrintGame(t *testing.T) {
	var buf bytes.Buffer
	printGame(&buf, models.WorldState{
		PublicEvents: []models.GameEvent{
			{Kind: models.EventSpeech, Phase: models.PhaseDay, Actor: "alice", Content: "hi"},
			{Kind: models.EventVote, Phase: models.PhaseVote, Actor: "alice", Target: "bob"},
		},
	}, &models.GameResult{Winner: models.VillageSide, Roles: map[string]models.Role{"bob": models.Werewolf, "alice": models.Seer}}, 7)

	out := buf.String()
	assert.Contains(t, out, "[day] alice: hi")
	assert.Contains(t, out, "[vote] alice votes for bob")
	assert.Contains(t, out, "finished after 7 steps, village side wins")
	assert.Less(t, strings.Index(out, "  alice"), strings.Index(out, "  bob"))
}
