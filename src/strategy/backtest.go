package strategy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/model"
)

const (
	tickLayout        = "20060102 150405"
	maxFractionDigits = 6
)

// ParseTickLine parses "timestamp;last;..." where timestamp looks like
// "20240912 143000 1234567". The last character of the timestamp is dropped
// and what remains of the fraction is read as microseconds.
func ParseTickLine(line string) (model.Tick, error) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) < 2 {
		return model.Tick{}, fmt.Errorf("expected at least 2 fields, got %d", len(parts))
	}

	raw := parts[0]
	if len(raw) <= len(tickLayout) {
		return model.Tick{}, fmt.Errorf("timestamp %q too short", raw)
	}
	raw = raw[:len(raw)-1]

	ts, err := time.Parse(tickLayout, raw[:len(tickLayout)])
	if err != nil {
		return model.Tick{}, err
	}
	frac := strings.TrimSpace(raw[len(tickLayout):])
	if frac != "" {
		if len(frac) > maxFractionDigits {
			return model.Tick{}, fmt.Errorf("fraction %q too long", frac)
		}
		var micros int
		for _, c := range frac {
			if c < '0' || c > '9' {
				return model.Tick{}, fmt.Errorf("invalid fraction %q", frac)
			}
			micros = micros*10 + int(c-'0')
		}
		for i := len(frac); i < maxFractionDigits; i++ {
			micros *= 10
		}
		ts = ts.Add(time.Duration(micros) * time.Microsecond)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.Tick{}, err
	}
	return model.Tick{Price: price, Timestamp: ts}, nil
}

// ReadTicks calls fn for every well-formed line of r. Malformed lines are
// skipped. An error from fn stops the read and is returned.
func ReadTicks(r io.Reader, fn func(model.Tick) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tick, err := ParseTickLine(scanner.Text())
		if err != nil {
			continue
		}
		if err := fn(tick); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// StreamFile opens path and reads its ticks. A missing or unreadable file is
// reported before any tick is streamed.
func StreamFile(path string, fn func(model.Tick) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read file at %s: %w", path, err)
	}
	defer f.Close()
	return ReadTicks(f, fn)
}

// RunBacktest replays the file through the bot and returns the number of
// ticks processed. A threshold halt ends the replay without an error.
func RunBacktest(ctx context.Context, bot *Bot, path string, log *logrus.Entry) (int, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	n := 0
	err := StreamFile(path, func(t model.Tick) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		return bot.ProcessPrice(ctx, t.Price, t.Timestamp)
	})
	if errors.Is(err, ErrHalted) {
		log.WithField("ticks", n).Warn("backtest halted by threshold")
		return n, nil
	}
	if err != nil {
		return n, err
	}
	log.WithField("ticks", n).Info("backtest finished")
	return n, nil
}
