package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fxbot/internal/config"
	"fxbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T, mux *http.ServeMux) *BridgeClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewBridgeClient(config.BridgeConfig{URL: srv.URL + "/", Token: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestBridgeBars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "XAUUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "M15", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`[
			{"time":"2024-03-01T00:00:00Z","open":2030.1,"high":2031,"low":2029.5,"close":2030.7,"volume":812},
			{"time":"2024-03-01T00:15:00Z","open":2030.7,"high":2032.2,"low":2030.2,"close":2031.9,"volume":640}
		]`))
	})
	c := newBridge(t, mux)

	bars, err := c.Bars(context.Background(), "XAUUSD", models.M15, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2031.9, bars[1].Close)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC), bars[1].Time.UTC())
}

func TestBridgeErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /symbols/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"symbol NOPE not found"}`))
	})
	mux.HandleFunc("POST /positions/{ticket}/close", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"market closed"}`))
	})
	c := newBridge(t, mux)

	_, err := c.Symbol(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "symbol NOPE not found")

	err = c.ClosePosition(context.Background(), 77, 0.1)
	var be *BridgeError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusConflict, be.Status)
	assert.Equal(t, "market closed", be.Message)
}

func TestBridgePlaceMarket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.SideSell, req.Side)
		assert.Equal(t, int64(1002), req.Magic)
		assert.Equal(t, 0.25, req.Volume)
		_, _ = w.Write([]byte(`{"ticket":991,"price":64010.5,"volume":0.25,"retcode":10009}`))
	})
	mux.HandleFunc("GET /deals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "991", r.URL.Query().Get("position"))
		_, _ = w.Write([]byte(`[{"ticket":1,"position":991,"entry":"IN","price":64010.5,"volume":0.25},
			{"ticket":2,"position":991,"entry":"OUT","price":64200,"volume":0.25,"profit":-47.4}]`))
	})
	c := newBridge(t, mux)

	res, err := c.PlaceMarket(context.Background(), OrderRequest{
		Symbol: "BTCUSD", Side: models.SideSell, Volume: 0.25, SL: 64200, TP: 63600, Magic: 1002,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(991), res.Ticket)
	assert.Equal(t, 64010.5, res.Price)

	deals, err := c.Deals(context.Background(), 991)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, models.DealOut, deals[1].Entry)
	assert.Equal(t, -47.4, deals[1].Profit)
}

func TestNewBridgeClientNeedsURL(t *testing.T) {
	_, err := NewBridgeClient(config.BridgeConfig{})
	require.Error(t, err)
}
