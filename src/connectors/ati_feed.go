package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/model"
)

type marketDataClient interface {
	LastPrice(instrument string) float64
	SubscribeMarketData(instrument string) error
	UnsubscribeMarketData(instrument string) error
}

// ATIFeed polls the last price published by the terminal and emits a tick
// whenever it changes. Zero prices mean no data yet and are skipped.
type ATIFeed struct {
	client     marketDataClient
	instrument string
	period     time.Duration
	now        func() time.Time
	log        *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewATIFeed(client marketDataClient, instrument string, period time.Duration, log *logrus.Entry) *ATIFeed {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if period <= 0 {
		period = 250 * time.Millisecond
	}
	return &ATIFeed{
		client:     client,
		instrument: instrument,
		period:     period,
		now:        time.Now,
		log:        log.WithFields(logrus.Fields{"component": "ati_feed", "instrument": instrument}),
	}
}

func (f *ATIFeed) Ticks(ctx context.Context) (<-chan model.Tick, <-chan error) {
	ticks := make(chan model.Tick, feedBuffer)
	errs := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	if err := f.client.SubscribeMarketData(f.instrument); err != nil {
		f.log.WithError(err).Warn("market data subscription failed, polling anyway")
		reportErr(errs, err)
	}

	go func() {
		defer close(ticks)
		defer cancel()

		ticker := time.NewTicker(f.period)
		defer ticker.Stop()

		var last float64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			price := f.client.LastPrice(f.instrument)
			if price <= 0 || price == last {
				continue
			}
			last = price
			select {
			case ticks <- model.Tick{Price: decimal.NewFromFloat(price), Timestamp: f.now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ticks, errs
}

func (f *ATIFeed) Close() error {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	return f.client.UnsubscribeMarketData(f.instrument)
}
