package monitor

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncActiveGames()
		m.ObservePhaseStep("night")
		m.ObserveReview("comment", "approved")
		m.ObserveCollaboratorFailure("belief")
		m.ObserveBeliefFanout(time.Millisecond)
		m.ObserveGameFinished("village")
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("onenight_test")
	m.ObservePhaseStep("day")
	m.ObservePhaseStep("day")
	m.ObserveReview("speech", "forced_cap")
	m.IncActiveGames()
	m.IncActiveGames()
	m.DecActiveGames()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PhaseSteps.WithLabelValues("day")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReviewOutcomes.WithLabelValues("speech", "forced_cap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveGames))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("onenight_test")
	m.ObserveGameFinished("werewolf")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `onenight_test_games_finished_total{winner="werewolf"} 1`)
}
