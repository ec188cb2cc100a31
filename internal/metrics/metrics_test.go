package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecordersAreSafe(t *testing.T) {
	var a *Actors
	var r *Rounds
	var b *Broadcast

	assert.NotPanics(t, func() {
		a.Activated("room")
		a.Deactivated("room")
		a.ActivationFailed("room")
		a.Observe("room", 0)
		r.Started()
		r.Resolved()
		r.Guessed()
		b.Published()
		b.Subscribed()
		b.Unsubscribed()
	})
}

func TestActorGauge(t *testing.T) {
	reg := New()
	reg.Actors.Activated("player")
	reg.Actors.Activated("player")
	reg.Actors.Deactivated("player")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Actors.active.WithLabelValues("player")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.Actors.activations.WithLabelValues("player")))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := New()
	reg.Rounds.Started()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "guessroom_round_started_total 1"))
}
