package connectors

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("ati: not connected")
	ErrHandshakeTimeout = errors.New("ati: handshake timeout waiting for ATI key")
	ErrSocketClosed     = errors.New("ati: socket closed")
)

// ConnectionError reports a failed connect or handshake against the terminal.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("unable to connect to server (%s/%d): %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a frame that could not be written to the socket.
type SendError struct {
	Frame string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send frame %q: %v", e.Frame, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// StatusDescriptions maps terminal order statuses to human-readable messages.
var StatusDescriptions = map[string]string{
	StatusWorking:         "order is working at the exchange",
	StatusAccepted:        "order accepted by the exchange",
	StatusSubmitted:       "order submitted, awaiting acceptance",
	StatusFilled:          "order completely filled",
	StatusPartiallyFilled: "order partially filled",
	StatusCancelled:       "order cancelled",
	StatusRejected:        "order rejected",
	StatusExpired:         "order expired",
	StatusPending:         "order pending submission",
	StatusTriggered:       "stop order triggered",
	StatusAmended:         "order amended",
}

// DescribeStatus returns a readable message for a terminal order status.
// Unknown statuses come back as a generic message including the raw value.
func DescribeStatus(status string) string {
	if msg, ok := StatusDescriptions[status]; ok {
		return msg
	}
	if status == "" {
		return "UNKNOWN_ORDER_STATUS"
	}
	return fmt.Sprintf("UNKNOWN_ORDER_STATUS_%s", status)
}
