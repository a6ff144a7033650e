package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/model"
)

const (
	PriceSourceATI       = "ati"
	PriceSourceWebsocket = "websocket"

	feedTimestampLayout = "2006-01-02 15:04:05.999999"
	feedBuffer          = 256
)

// PriceSource streams ticks until ctx is done or Close is called. The tick
// channel is closed when the source stops; errors are informational.
type PriceSource interface {
	Ticks(ctx context.Context) (<-chan model.Tick, <-chan error)
	Close() error
}

// feedMessage is one price message of the websocket stream. LAST may be a
// number or a string.
type feedMessage struct {
	Last      decimal.Decimal `json:"LAST"`
	Timestamp string          `json:"TIMESTAMP"`
}

// DecodeFeedMessage parses a websocket price message. A missing timestamp
// falls back to the local clock.
func DecodeFeedMessage(raw []byte, now time.Time) (model.Tick, error) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.Tick{}, err
	}
	if !msg.Last.IsPositive() {
		return model.Tick{}, fmt.Errorf("invalid LAST %s", msg.Last)
	}
	ts := now
	if s := strings.TrimSpace(msg.Timestamp); s != "" {
		parsed, err := time.Parse(feedTimestampLayout, s)
		if err != nil {
			return model.Tick{}, err
		}
		ts = parsed
	}
	return model.Tick{Price: msg.Last, Timestamp: ts}, nil
}

// WebsocketFeed reads ticks from a websocket publisher and redials after
// RetryDelay whenever the stream breaks.
type WebsocketFeed struct {
	URL        string
	RetryDelay time.Duration

	dialer websocket.Dialer
	log    *logrus.Entry

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	closed bool
}

func NewWebsocketFeed(url string, retryDelay time.Duration, log *logrus.Entry) *WebsocketFeed {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &WebsocketFeed{
		URL:        url,
		RetryDelay: retryDelay,
		dialer: websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		log: log.WithField("component", "price_feed"),
	}
}

func (f *WebsocketFeed) Ticks(ctx context.Context) (<-chan model.Tick, <-chan error) {
	ticks := make(chan model.Tick, feedBuffer)
	errs := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	go func() {
		defer close(ticks)
		defer cancel()
		for ctx.Err() == nil {
			err := f.stream(ctx, ticks)
			if ctx.Err() != nil {
				return
			}
			f.log.WithError(err).WithField("retry_in", f.RetryDelay).Warn("price feed disconnected")
			reportErr(errs, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.RetryDelay):
			}
		}
	}()
	return ticks, errs
}

func (f *WebsocketFeed) stream(ctx context.Context, out chan<- model.Tick) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return fmt.Errorf("price feed dial failed: %w", err)
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return errors.New("price feed closed")
	}
	f.conn = conn
	f.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
	}()

	f.log.WithField("url", f.URL).Info("price feed connected")
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("price feed read failed: %w", err)
		}
		tick, err := DecodeFeedMessage(raw, time.Now())
		if err != nil {
			f.log.WithError(err).Debug("skipping malformed price message")
			continue
		}
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *WebsocketFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func reportErr(errs chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errs <- err:
	default:
	}
}
