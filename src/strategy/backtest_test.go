package strategy

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibexecutor/src/model"
)

func TestParseTickLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    time.Time
		price   string
		wantErr bool
	}{
		{
			name:  "seven digit fraction",
			line:  "20240912 143000 1234567;21750.25;21750;21750.5;3",
			want:  time.Date(2024, 9, 12, 14, 30, 0, 123456000, time.UTC),
			price: "21750.25",
		},
		{
			name:  "short fraction",
			line:  "20240912 143001 50;100",
			want:  time.Date(2024, 9, 12, 14, 30, 1, 500000000, time.UTC),
			price: "100",
		},
		{
			name:  "no fraction left",
			line:  "20240912 143002 0;100.5",
			want:  time.Date(2024, 9, 12, 14, 30, 2, 0, time.UTC),
			price: "100.5",
		},
		{name: "single field", line: "20240912 143000 1234567", wantErr: true},
		{name: "bad price", line: "20240912 143000 1234567;abc", wantErr: true},
		{name: "bad date", line: "2024-09-12 14:30:00.1234567;100", wantErr: true},
		{name: "short timestamp", line: "20240912;100", wantErr: true},
		{name: "fraction too long", line: "20240912 143000 123456789;100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick, err := ParseTickLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tick.Timestamp.Equal(tt.want), "timestamp %s", tick.Timestamp)
			assert.True(t, tick.Price.Equal(d(tt.price)))
		})
	}
}

func TestReadTicks_SkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		"20240912 100000 0000000;112",
		"",
		"garbage",
		"20240912 100001 0000000;not-a-price",
		"20240912 100002 0000000;113",
	}, "\n")

	var got []model.Tick
	err := ReadTicks(strings.NewReader(input), func(tk model.Tick) error {
		got = append(got, tk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Price.Equal(d("113")))
}

func TestReadTicks_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := ReadTicks(strings.NewReader("20240912 100000 0;1\n20240912 100001 0;2\n"), func(model.Tick) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRunBacktest(t *testing.T) {
	path := writeSession(t, "ticks.csv", strings.Join([]string{
		"20240912 100000 0000000;112",
		"20240912 100001 0000000;112",
		"20240912 100002 0000000;100",
		"bad line",
		"20240912 100003 0000000;115",
	}, "\n"))

	bot, _ := newBacktestBot(t, testConfig())
	n, err := RunBacktest(context.Background(), bot, path, nullLog())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	closed := bot.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, model.OutcomeProfit, closed[0].Outcome)
}

func TestRunBacktest_StopsWhenHalted(t *testing.T) {
	cfg := testConfig()
	threshold := d("10")
	cfg.ProfitThreshold = &threshold

	path := writeSession(t, "ticks.csv", strings.Join([]string{
		"20240912 100000 0000000;112",
		"20240912 100001 0000000;112",
		"20240912 100002 0000000;100",
		"20240912 100003 0000000;115",
		"20240912 100004 0000000;100",
		"20240912 100005 0000000;90",
	}, "\n"))

	bot, _ := newBacktestBot(t, cfg)
	n, err := RunBacktest(context.Background(), bot, path, nullLog())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, StateHalted, bot.State())
}

func TestRunBacktest_MissingFile(t *testing.T) {
	bot, _ := newBacktestBot(t, testConfig())
	_, err := RunBacktest(context.Background(), bot, filepath.Join(t.TempDir(), "nope.csv"), nullLog())
	require.Error(t, err)
}
