package connectors

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibexecutor/src/model"
)

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func samplePending() model.PendingOrder {
	return model.PendingOrder{
		Instrument: "NQ 12-24",
		Side:       model.SideBuy,
		Price:      decimal.RequireFromString("21765.5"),
		FibRatio:   0.618,
		TakeProfit: decimal.RequireFromString("21785.5"),
		StopLoss:   decimal.RequireFromString("21745.5"),
	}
}

func sampleClosed(outcome string, net string) model.ClosedPosition {
	return model.ClosedPosition{
		Position: model.OpenPosition{
			Instrument: "NQ 12-24",
			FibRatio:   -0.618,
			Side:       model.PositionShort,
			EntryPrice: decimal.RequireFromString("100"),
		},
		ExitPrice: decimal.RequireFromString("85"),
		Outcome:   outcome,
		Net:       decimal.RequireFromString(net),
	}
}

func TestFormatEmbed(t *testing.T) {
	now := time.Date(2024, 9, 12, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		kind      string
		payload   interface{}
		color     int
		title     string
		wantField string
	}{
		{name: "pending", kind: model.EventPendingOrder, payload: samplePending(), color: ColorPending, title: "↗ `Pending` Order `(NQ 12-24)` Generated", wantField: "0.618"},
		{name: "profit", kind: model.EventPositionClose, payload: sampleClosed(model.OutcomeProfit, "15"), color: ColorProfit, title: "`SHORT` Position closed `(NQ 12-24)`: PROFIT", wantField: "85"},
		{name: "loss", kind: model.EventPositionClose, payload: sampleClosed(model.OutcomeLoss, "-15"), color: ColorLoss, title: "`SHORT` Position closed `(NQ 12-24)`: LOSS", wantField: "-15"},
		{
			name:    "kickoff",
			kind:    model.EventKickoff,
			payload: model.Kickoff{Instrument: "NQ 12-24", PointA: decimal.RequireFromString("21805.5"), PointB: decimal.RequireFromString("21701")},
			color:   ColorKickoff,
			title:   "`Kickoff notification` NQ 12-24",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embed, err := FormatEmbed(tt.kind, mustMarshal(t, tt.payload), now)
			require.NoError(t, err)
			assert.Equal(t, tt.color, embed.Color)
			assert.Equal(t, tt.title, embed.Title)
			require.NotNil(t, embed.Footer)
			assert.Equal(t, "Notified at • 2024-09-12 10:00:00", embed.Footer.Text)
			if tt.wantField != "" {
				found := false
				for _, f := range embed.Fields {
					if f.Value == tt.wantField {
						found = true
					}
				}
				assert.True(t, found, "field value %q not found in %+v", tt.wantField, embed.Fields)
			}
		})
	}

	_, err := FormatEmbed("SOMETHING", []byte(`{}`), now)
	require.ErrorIs(t, err, ErrUnknownEventKind)
	_, err = FormatEmbed(model.EventPendingOrder, []byte(`not json`), now)
	require.Error(t, err)
}

func TestDiscordNotifier_Notify(t *testing.T) {
	var body webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL, nullEntry())
	err := d.Notify(context.Background(), model.EventPendingOrder, mustMarshal(t, samplePending()))
	require.NoError(t, err)
	require.Len(t, body.Embeds, 1)
	assert.Equal(t, ColorPending, body.Embeds[0].Color)
}

func TestDiscordNotifier_NonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL, nullEntry())
	err := d.Notify(context.Background(), model.EventKickoff, mustMarshal(t, model.Kickoff{Instrument: "NQ"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
