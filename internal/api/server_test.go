package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopilot/trade-core/internal/coordinator"
	"github.com/cryptopilot/trade-core/internal/history"
	"github.com/cryptopilot/trade-core/internal/risk"
	"github.com/cryptopilot/trade-core/internal/safety"
	"github.com/cryptopilot/trade-core/internal/settings"
	"github.com/cryptopilot/trade-core/internal/venue"
)

func newTestServer(t *testing.T) (*httptest.Server, *venue.SimAdapter) {
	t.Helper()

	sim := venue.NewSimAdapter("sim")
	sim.SetPrice("BTCUSDT", 50000)
	sim.SetCollateral("user-1", 100000)

	selector := venue.NewSelector(venue.SelectorConfig{
		Breaker: safety.BreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, Window: time.Minute, Cooldown: time.Second},
	}, sim)

	store := coordinator.NewConfirmationStore(time.Minute)
	t.Cleanup(store.Stop)

	coord := coordinator.New(risk.NewEngine(10, 0.025), selector, store,
		settings.NewStaticProvider(), history.Nop{}, coordinator.Config{
			ConfirmationTTL: time.Minute,
			ExecuteTimeout:  time.Second,
		})

	srv := httptest.NewServer(NewServer(coord, history.Nop{}, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, sim
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPrepareConfirmOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/trade/prepare", map[string]any{
		"user_id": "user-1", "action": "buy", "market": "BTCUSDT",
		"amount": 0.5, "leverage": 3.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prep := decode[coordinator.PrepareResult](t, resp)
	require.NotEmpty(t, prep.ConfirmationID)
	assert.Equal(t, 50000.0, prep.EstimatedPrice)

	resp = postJSON(t, srv.URL+"/api/trade/confirm", map[string]any{
		"confirmation_id": prep.ConfirmationID, "user_id": "user-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conf := decode[coordinator.ConfirmResult](t, resp)
	assert.Equal(t, "executed", conf.Status)
	assert.Equal(t, "sim", conf.Venue)

	// Double confirm conflicts.
	resp = postJSON(t, srv.URL+"/api/trade/confirm", map[string]any{
		"confirmation_id": prep.ConfirmationID, "user_id": "user-1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[map[string]string](t, resp)
	assert.Equal(t, "ALREADY_CONSUMED", errResp["kind"])
}

func TestPrepareValidationMapsTo422(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/trade/prepare", map[string]any{
		"user_id": "user-1", "action": "buy", "market": "BTCUSDT",
		"amount": 0.5, "leverage": 50.0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errResp := decode[map[string]string](t, resp)
	assert.Equal(t, "VALIDATION", errResp["kind"])
	assert.Equal(t, risk.RuleLeverageExceedsCap, errResp["rule"])
}

func TestListAndClosePositions(t *testing.T) {
	srv, sim := newTestServer(t)

	sim.SeedPosition(risk.Position{
		ID: "pos-1", UserID: "user-1", Market: "BTCUSDT",
		Side: risk.SideLong, Size: 1.0, EntryPrice: 48000,
		Leverage: 2.0, Venue: "sim", Status: risk.StatusOpen,
	})

	resp, err := http.Get(srv.URL + "/api/positions?user_id=user-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decode[map[string][]risk.Position](t, resp)
	require.Len(t, listing["positions"], 1)

	resp = postJSON(t, srv.URL+"/api/positions/pos-1/close", map[string]any{
		"user_id": "user-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := decode[coordinator.CloseOutcome](t, resp)
	assert.Equal(t, 1.0, outcome.ClosedSize)

	// Closed position vanishes from the listing.
	resp, err = http.Get(srv.URL + "/api/positions?user_id=user-1")
	require.NoError(t, err)
	listing = decode[map[string][]risk.Position](t, resp)
	assert.Empty(t, listing["positions"])
}

func TestCloseUnknownPositionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/positions/nope/close", map[string]any{
		"user_id": "user-1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPositionsRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/positions")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
