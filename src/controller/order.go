package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/metrics"
	"fibexecutor/src/model"
)

// DefaultOrderType is the type segment embedded in generated ids.
const DefaultOrderType = "NA"

// OrderClient is the part of the terminal client an order needs.
type OrderClient interface {
	LastPrice(instrument string) float64
	Command(frame connectors.CommandFrame) error
	CancelOrder(ctx context.Context, account, instrument, orderID string) error
}

// InvalidActionError is returned before any network call when an order's
// action is neither BUY nor SELL.
type InvalidActionError struct {
	Action string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action: %q", e.Action)
}

// Order is one logical order at a price. Re-placing it bumps Count and
// regenerates ID, so every attempt stays traceable to the same Identifier.
type Order struct {
	Instrument string
	Action     string
	Quantity   int
	Price      float64
	Strategy   string // terminal ATM template, "{TP}_{SL}"
	Type       string

	Status     string
	ID         string
	OriginalID string
	OCOID      string
	Count      int
	Identifier string
	OrderType  string

	StopLinkedID   string
	ProfitLinkedID string

	CreatedAt time.Time
}

func NewOrder(instrument, action, strategy string, quantity int, price float64) *Order {
	return &Order{
		Instrument: instrument,
		Action:     action,
		Quantity:   quantity,
		Price:      price,
		Strategy:   strategy,
		Type:       DefaultOrderType,
		Status:     model.OrderStatusPending,
		Identifier: strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		CreatedAt:  time.Now(),
	}
}

func (o *Order) generateID(account string) {
	o.Count++
	o.ID = fmt.Sprintf("ORCA_Q%d_%s__%s_%s_%s_%d", o.Quantity, account, o.Instrument, o.Type, o.Identifier, o.Count)
	o.OCOID = "OCO_" + o.ID
}

// ClassifyOrderType picks STOPMARKET when price is below the last price for
// either side and MIT otherwise.
func ClassifyOrderType(action string, price, last float64) string {
	if (action == connectors.ActionBuy && price < last) || (action == connectors.ActionSell && price < last) {
		return connectors.OrderTypeStopMarket
	}
	return connectors.OrderTypeMIT
}

// Place submits the order. With refresh the id is regenerated once more
// right before sending.
func (o *Order) Place(ctx context.Context, client OrderClient, account string, timeInForce string, refresh bool, log *logrus.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Action != connectors.ActionBuy && o.Action != connectors.ActionSell {
		return &InvalidActionError{Action: o.Action}
	}
	if timeInForce == "" {
		timeInForce = connectors.TimeInForceGTC
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	o.generateID(account)
	o.OriginalID = o.ID

	last := client.LastPrice(o.Instrument)
	o.OrderType = ClassifyOrderType(o.Action, o.Price, last)

	if refresh {
		o.generateID(account)
	}

	err := client.Command(connectors.CommandFrame{
		Command:     connectors.CommandPlace,
		Account:     account,
		Instrument:  o.Instrument,
		Action:      o.Action,
		Quantity:    o.Quantity,
		OrderType:   o.OrderType,
		LimitPrice:  o.Price,
		StopPrice:   o.Price,
		TimeInForce: timeInForce,
		OCO:         o.OCOID,
		OrderID:     o.ID,
		Template:    o.Strategy,
	})
	if err != nil {
		return fmt.Errorf("place order %s: %w", o.ID, err)
	}

	o.Status = model.OrderStatusPlaced
	metrics.Orders.WithLabelValues(strings.ToLower(o.Action)).Inc()
	log.WithFields(logrus.Fields{
		"account":    account,
		"instrument": o.Instrument,
		"action":     o.Action,
		"quantity":   o.Quantity,
		"order_type": o.OrderType,
		"price":      o.Price,
		"order_id":   o.ID,
	}).Info("order placed")
	return nil
}

// Cancel asks the terminal to cancel the order; the client sends the frame twice.
func (o *Order) Cancel(ctx context.Context, client OrderClient, account string) error {
	if o.ID == "" {
		return nil
	}
	if err := client.CancelOrder(ctx, account, o.Instrument, o.ID); err != nil {
		return fmt.Errorf("cancel order %s: %w", o.ID, err)
	}
	metrics.Orders.WithLabelValues("cancel").Inc()
	return nil
}

func (o *Order) String() string {
	return fmt.Sprintf("%s-%v-%s-%d", o.Type, o.Price, o.ID, o.Count)
}
