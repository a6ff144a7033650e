package connectors

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const maxFrameSize = 1 << 20

// ValueTable is the latest-value table fed by the terminal. Last write wins.
type ValueTable struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewValueTable() *ValueTable {
	return &ValueTable{values: make(map[string]string)}
}

func (t *ValueTable) Set(key, value string) {
	t.mu.Lock()
	t.values[key] = value
	t.mu.Unlock()
}

func (t *ValueTable) Get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

func (t *ValueTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// Snapshot returns a copy of the table.
func (t *ValueTable) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// ATISocket is the framed stream to the terminal. It stores every inbound
// key=value line through onValue and writes outbound frames; it never
// interprets values.
type ATISocket struct {
	conn    net.Conn
	onValue func(key, value string)
	log     *logrus.Entry

	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// DialATI connects to host:port and starts the background receiver.
func DialATI(ctx context.Context, host string, port int, timeout time.Duration, onValue func(key, value string), log *logrus.Entry) (*ATISocket, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return NewATISocket(conn, onValue, log), nil
}

// NewATISocket wraps an established connection and starts the receiver.
func NewATISocket(conn net.Conn, onValue func(key, value string), log *logrus.Entry) *ATISocket {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &ATISocket{
		conn:    conn,
		onValue: onValue,
		log:     log,
		done:    make(chan struct{}),
	}
	s.connected.Store(true)
	go s.receive()
	return s
}

func (s *ATISocket) receive() {
	defer func() {
		s.connected.Store(false)
		s.closeOnce.Do(func() {
			close(s.done)
			_ = s.conn.Close()
		})
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		key, value, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if s.onValue != nil {
			s.onValue(key, value)
		}
	}
	if err := scanner.Err(); err != nil && s.IsConnected() {
		s.log.WithError(err).Warn("ati receiver stopped")
	}
}

// ParseLine splits an inbound line on the first '='.
func ParseLine(line string) (key, value string, ok bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return "", "", false
	}
	idx := strings.IndexByte(line, '=')
	if idx <= 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

// EncodeFrame renders an outbound frame without the trailing newline.
func EncodeFrame(msgType MessageType, args ...any) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(msgType)))
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(formatArg(a))
	}
	return b.String()
}

func formatArg(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Send writes a single frame.
func (s *ATISocket) Send(msgType MessageType, args ...any) error {
	frame := EncodeFrame(msgType, args...)
	if !s.IsConnected() {
		return &SendError{Frame: frame, Err: ErrSocketClosed}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write([]byte(frame + "\n")); err != nil {
		return &SendError{Frame: frame, Err: err}
	}
	return nil
}

func (s *ATISocket) IsConnected() bool {
	return s.connected.Load()
}

// Done is closed once the receiver exits.
func (s *ATISocket) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent.
func (s *ATISocket) Close() error {
	s.connected.Store(false)
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		close(s.done)
	})
	return err
}
