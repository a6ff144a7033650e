package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibexecutor/src/model"
	"fibexecutor/src/strategy"
)

type stubBot struct {
	status strategy.Status
	closed []model.ClosedPosition
}

func (s *stubBot) Status() strategy.Status { return s.status }
func (s *stubBot) ClosedPositions() []model.ClosedPosition { return s.closed }

type mockPositionLister struct {
	rows      []model.ClosedPositionRecord
	err       error
	sessionID string
}

func (m *mockPositionLister) ListBySession(_ context.Context, sessionID string) ([]model.ClosedPositionRecord, error) {
	m.sessionID = sessionID
	return m.rows, m.err
}

func TestStatusHandler(t *testing.T) {
	bot := &stubBot{status: strategy.Status{SessionID: "s1", State: strategy.StateHalted, PnL: decimal.NewFromInt(52)}}

	rr := httptest.NewRecorder()
	StatusHandler(bot).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "HALTED", got["state"])
	assert.Equal(t, "52", got["pnl"])
}

func TestPositionsHandler_InMemory(t *testing.T) {
	bot := &stubBot{closed: []model.ClosedPosition{
		{Outcome: model.OutcomeProfit, Net: decimal.NewFromInt(15)},
		{Outcome: model.OutcomeLoss, Net: decimal.NewFromInt(-15)},
	}}

	rr := httptest.NewRecorder()
	PositionsHandler(bot, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/positions", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got struct {
		Positions []model.ClosedPosition `json:"positions"`
		Summary   struct {
			Profits int     `json:"profits"`
			Losses  int     `json:"losses"`
			WinRate float64 `json:"win_rate"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Positions, 2)
	assert.Equal(t, 1, got.Summary.Profits)
	assert.Equal(t, 1, got.Summary.Losses)
	assert.InDelta(t, 50, got.Summary.WinRate, 0.001)
}

func TestPositionsHandler_Persisted(t *testing.T) {
	tests := []struct {
		name     string
		store    *mockPositionLister
		wantCode int
	}{
		{name: "rows", store: &mockPositionLister{rows: []model.ClosedPositionRecord{{SessionID: "old"}}}, wantCode: http.StatusOK},
		{name: "repo error", store: &mockPositionLister{err: assert.AnError}, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			PositionsHandler(&stubBot{}, tt.store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/positions?sessionId=old", nil))
			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "old", tt.store.sessionID)
		})
	}

	rr := httptest.NewRecorder()
	PositionsHandler(&stubBot{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/positions?sessionId=old", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEventHub_PushesEvents(t *testing.T) {
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), strategy.Event{
		Kind:      model.EventKickoff,
		SessionID: "s1",
		Kickoff:   &model.Kickoff{Instrument: "NQ 12-24"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev strategy.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, model.EventKickoff, ev.Kind)
	require.NotNil(t, ev.Kickoff)
	assert.Equal(t, "NQ 12-24", ev.Kickoff.Instrument)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEventHub_NoClients(t *testing.T) {
	hub := NewEventHub()
	hub.Publish(context.Background(), strategy.Event{Kind: model.EventKickoff})
	assert.Equal(t, 0, hub.Clients())
}
