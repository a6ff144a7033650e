package connectors

// NT8 ATI CLIENT
// Polled key/value table + ';' command frames, single deferred reconnect.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"fibexecutor/src/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Socket is the transport the client drives.
type Socket interface {
	Send(msgType MessageType, args ...any) error
	IsConnected() bool
	Close() error
}

type dialFunc func(ctx context.Context, host string, port int, onValue func(key, value string)) (Socket, error)

// CommandFrame is the 13-field command sent as message type 0.
// Field order is fixed by the terminal.
type CommandFrame struct {
	Command     string
	Account     string
	Instrument  string
	Action      string
	Quantity    int
	OrderType   string
	LimitPrice  float64
	StopPrice   float64
	TimeInForce string
	OCO         string
	OrderID     string
	Template    string
	Strategy    string
}

func (f CommandFrame) String() string {
	return strings.Join([]string{
		f.Command,
		f.Account,
		f.Instrument,
		f.Action,
		strconv.Itoa(f.Quantity),
		f.OrderType,
		formatArg(f.LimitPrice),
		formatArg(f.StopPrice),
		f.TimeInForce,
		f.OCO,
		f.OrderID,
		f.Template,
		f.Strategy,
	}, ";")
}

type NTClient struct {
	host string
	port int
	log  *logrus.Entry
	dial dialFunc

	values *ValueTable

	handshakePolls    int
	handshakeInterval time.Duration
	reconnectDelay    time.Duration

	mu          sync.Mutex
	socket      Socket
	hadError    bool
	showedError bool
	attempting  bool
	timer       *time.Timer
	closed      bool
}

// NewNTClient builds a client from config. Nothing is dialled until the
// first query or command.
func NewNTClient(cfg Config, log *logrus.Entry) *NTClient {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	host := cfg.NTHost
	if strings.TrimSpace(host) == "" {
		host = DefaultHost
	}
	port := cfg.NTPort
	if port == 0 {
		port = DefaultPort
	}
	polls := cfg.HandshakePolls
	if polls <= 0 {
		polls = 1000
	}
	interval := cfg.HandshakeInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	c := &NTClient{
		host:              host,
		port:              port,
		log:               log.WithField("component", "nt_client"),
		values:            NewValueTable(),
		handshakePolls:    polls,
		handshakeInterval: interval,
		reconnectDelay:    delay,
	}
	c.dial = func(ctx context.Context, host string, port int, onValue func(key, value string)) (Socket, error) {
		return DialATI(ctx, host, port, dialTimeout, onValue, c.log)
	}
	return c
}

// Connect points the client at host:port and sets up the connection.
func (c *NTClient) Connect(host string, port int) error {
	c.mu.Lock()
	c.host = host
	c.port = port
	c.mu.Unlock()
	return c.setUp(true)
}

func (c *NTClient) setUp(showMessage bool) error {
	c.mu.Lock()
	if c.closed || c.hadError || c.attempting {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.socket != nil && c.socket.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	host, port := c.beginAttemptLocked()
	c.mu.Unlock()

	sock, err := c.connect(host, port)
	return c.finishAttempt(host, port, sock, err, showMessage)
}

// beginAttemptLocked marks a connection attempt in flight. Callers arriving
// while it runs get ErrNotConnected instead of waiting for the dial.
func (c *NTClient) beginAttemptLocked() (string, int) {
	c.attempting = true
	return c.host, c.port
}

// connect dials and waits for the ATI sentinel without holding c.mu.
func (c *NTClient) connect(host string, port int) (Socket, error) {
	// a stale sentinel from a previous session must not satisfy the handshake
	c.values.Set(KeyATI, "")

	c.log.WithFields(logrus.Fields{"host": host, "port": port}).Debug("attempting to connect to the terminal")

	sock, err := c.dial(context.Background(), host, port, c.values.Set)
	if err != nil {
		return nil, err
	}
	if herr := c.awaitHandshake(); herr != nil {
		_ = sock.Close()
		return nil, herr
	}
	return sock, nil
}

func (c *NTClient) finishAttempt(host string, port int, sock Socket, err error, showMessage bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempting = false

	if c.closed {
		if sock != nil {
			_ = sock.Close()
		}
		return ErrNotConnected
	}

	if err != nil {
		c.socket = nil
		c.hadError = true
		if !c.showedError {
			c.showedError = true
			if showMessage {
				c.log.WithError(err).WithFields(logrus.Fields{"host": host, "port": port}).Error("unable to connect to server")
			}
		}
		c.scheduleReconnectLocked()
		return &ConnectionError{Host: host, Port: port, Err: err}
	}

	if c.showedError {
		metrics.ATIReconnects.Inc()
	}
	c.socket = sock
	c.hadError = false
	c.showedError = false
	c.log.WithFields(logrus.Fields{"host": host, "port": port}).Info("connected to the terminal")
	return nil
}

func (c *NTClient) awaitHandshake() error {
	for i := 0; i < c.handshakePolls; i++ {
		if v, _ := c.values.Get(KeyATI); v != "" {
			return nil
		}
		time.Sleep(c.handshakeInterval)
	}
	return ErrHandshakeTimeout
}

func (c *NTClient) scheduleReconnectLocked() {
	if c.timer != nil || c.closed {
		return
	}
	c.timer = time.AfterFunc(c.reconnectDelay, c.onTimerElapsed)
}

// onTimerElapsed retries the connection. The sticky flag stays set until the
// attempt succeeds, so queries keep returning defaults meanwhile.
func (c *NTClient) onTimerElapsed() {
	c.mu.Lock()
	c.timer = nil
	if c.closed || c.attempting {
		c.mu.Unlock()
		return
	}
	host, port := c.beginAttemptLocked()
	c.mu.Unlock()

	sock, err := c.connect(host, port)
	_ = c.finishAttempt(host, port, sock, err, true)
}

// HadError reports the sticky error flag.
func (c *NTClient) HadError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hadError
}

// Connected is true only for a live socket whose ATI sentinel reads "True".
func (c *NTClient) Connected(showMessage bool) bool {
	if c.setUp(showMessage) != nil {
		return false
	}
	c.mu.Lock()
	ok := !c.showedError && c.socket != nil && c.socket.IsConnected()
	c.mu.Unlock()
	if !ok {
		return false
	}
	v, _ := c.values.Get(KeyATI)
	return v == "True"
}

// Close releases the socket and any pending reconnect timer.
func (c *NTClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.socket != nil {
		err := c.socket.Close()
		c.socket = nil
		return err
	}
	return nil
}

// -----------------------------
// GETTERS (never fail)
// -----------------------------

func (c *NTClient) GetString(key string) string {
	if c.setUp(true) != nil {
		return ""
	}
	v, _ := c.values.Get(key)
	return v
}

func (c *NTClient) GetDouble(key string) float64 {
	v := strings.TrimSpace(c.GetString(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func (c *NTClient) GetInt(key string) int {
	v := strings.TrimSpace(c.GetString(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (c *NTClient) MarketData(instrument string, dataType MarketDataType) float64 {
	return c.GetDouble(fmt.Sprintf("MarketData|%s|%d", instrument, dataType))
}

func (c *NTClient) LastPrice(instrument string) float64 {
	return c.MarketData(instrument, MarketDataLast)
}

func (c *NTClient) MarketPosition(instrument, account string) int {
	return c.GetInt(fmt.Sprintf("MarketPosition|%s|%s", instrument, account))
}

func (c *NTClient) BuyingPower(account string) float64 {
	return c.GetDouble("BuyingPower|" + account)
}

func (c *NTClient) CashValue(account string) float64 {
	return c.GetDouble("CashValue|" + account)
}

func (c *NTClient) OrderStatus(orderID string) string {
	return c.GetString("OrderStatus|" + orderID)
}

func (c *NTClient) Filled(orderID string) int {
	return c.GetInt("Filled|" + orderID)
}

func (c *NTClient) TargetOrders(strategyID string) int {
	return c.GetInt("TargetOrders|" + strategyID)
}

// AllOrders returns the ids listed under Orders|<account>.
func (c *NTClient) AllOrders(account string) []string {
	raw := c.GetString("Orders|" + account)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "|")
}

// OrdersWithKeyword filters AllOrders by substring.
func (c *NTClient) OrdersWithKeyword(account, keyword string) []string {
	all := c.AllOrders(account)
	if keyword == "" {
		return all
	}
	out := make([]string, 0, len(all))
	for _, id := range all {
		if strings.Contains(id, keyword) {
			out = append(out, id)
		}
	}
	return out
}

// OrdersFrom returns the ids starting at the first one containing identifier.
func (c *NTClient) OrdersFrom(account, identifier string) []string {
	all := c.AllOrders(account)
	for i, id := range all {
		if strings.Contains(id, identifier) {
			return all[i:]
		}
	}
	return nil
}

// BracketOrderIDs returns the last two ids, the stop and target of the latest entry.
func (c *NTClient) BracketOrderIDs(account string) []string {
	all := c.AllOrders(account)
	if len(all) <= 2 {
		return all
	}
	return all[len(all)-2:]
}

// OpenOrders counts the account's orders by status.
func (c *NTClient) OpenOrders(account string) map[string]int {
	counts := make(map[string]int)
	for _, id := range c.AllOrders(account) {
		status := c.OrderStatus(id)
		counts[status]++
		c.log.WithFields(logrus.Fields{"order_id": id, "status": status}).Debug("open order")
	}
	return counts
}

// OpenOrdersByInstrument counts accepted or filled orders with nothing filled yet.
func (c *NTClient) OpenOrdersByInstrument(account, instrument string) int {
	count := 0
	for _, id := range c.AllOrders(account) {
		status := c.OrderStatus(id)
		if status == StatusCancelled {
			continue
		}
		if (status == StatusAccepted || status == StatusFilled) && c.Filled(id) == 0 {
			count++
		}
	}
	return count
}

func (c *NTClient) NewOrderID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// -----------------------------
// COMMANDS
// -----------------------------

func (c *NTClient) send(msgType MessageType, args ...any) error {
	if err := c.setUp(true); err != nil {
		return err
	}
	c.mu.Lock()
	sock := c.socket
	c.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}
	return sock.Send(msgType, args...)
}

// Command sends a formatted command frame.
func (c *NTClient) Command(frame CommandFrame) error {
	return c.send(MessageCommand, frame.String())
}

func (c *NTClient) ConfirmOrders(confirm bool) error {
	return c.send(MessageConfirmOrders, confirm)
}

// SubscribeMarketData is a no-op once a last price is known for instrument.
func (c *NTClient) SubscribeMarketData(instrument string) error {
	if c.LastPrice(instrument) != 0 {
		c.log.WithField("instrument", instrument).Debug("already subscribed")
		return nil
	}
	c.log.WithField("instrument", instrument).Debug("subscribe")
	return c.send(MessageSubscribe, instrument, 1)
}

func (c *NTClient) UnsubscribeMarketData(instrument string) error {
	return c.send(MessageSubscribe, instrument, 0)
}

func (c *NTClient) CancelAllOrders(account string) error {
	metrics.Orders.WithLabelValues("cancel_all").Inc()
	return c.Command(CommandFrame{
		Command:     CommandCancelAllOrders,
		Account:     account,
		TimeInForce: TimeInForceGTC,
	})
}

func (c *NTClient) ClosePosition(account, instrument string) error {
	metrics.Orders.WithLabelValues("flat").Inc()
	return c.Command(CommandFrame{
		Command:    CommandFlatPosition,
		Account:    account,
		Instrument: instrument,
		Action:     ActionFlat,
	})
}

// CancelOrder sends the cancel twice, 100 ms apart.
func (c *NTClient) CancelOrder(ctx context.Context, account, instrument, orderID string) error {
	frame := CommandFrame{
		Command:     CommandCancel,
		Account:     account,
		Instrument:  instrument,
		TimeInForce: TimeInForceGTC,
		OrderID:     orderID,
	}
	if err := c.Command(frame); err != nil {
		return err
	}
	c.log.WithField("order_id", orderID).Info("order cancelled")
	if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	return c.Command(frame)
}

// FlatInstrument closes the position twice then cancels every order of the account.
func (c *NTClient) FlatInstrument(ctx context.Context, account, instrument string) error {
	err := c.ClosePosition(account, instrument)
	if err == nil {
		err = sleepCtx(ctx, 500*time.Millisecond)
	}
	if err == nil {
		err = c.ClosePosition(account, instrument)
	}
	if err == nil {
		err = c.CancelAllOrders(account)
	}
	if err == nil {
		c.log.WithFields(logrus.Fields{"account": account, "instrument": instrument}).Info("flatted")
		return nil
	}

	c.log.WithError(err).Error("flat instrument failed, retrying once")
	if err := c.ClosePosition(account, instrument); err != nil {
		return fmt.Errorf("flat instrument %s: %w", instrument, err)
	}
	if err := c.CancelAllOrders(account); err != nil {
		return fmt.Errorf("flat instrument %s: %w", instrument, err)
	}
	c.log.WithFields(logrus.Fields{"account": account, "instrument": instrument}).Info("flatted second time")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
