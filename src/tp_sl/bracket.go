package tp_sl

import (
	"github.com/shopspring/decimal"

	"fibexecutor/src/model"
)

type Side string

const (
	SideLong  Side = model.PositionLong
	SideShort Side = model.PositionShort
)

// SideForAction maps an order action to the position it opens.
func SideForAction(action string) Side {
	if action == model.SideBuy {
		return SideLong
	}
	return SideShort
}

// Bracket returns the take-profit and stop-loss prices around ref.
//
// Long:  tp = ref + takeProfit, sl = ref - stopLoss
// Short: tp = ref - takeProfit, sl = ref + stopLoss
func Bracket(side Side, ref, takeProfit, stopLoss decimal.Decimal) (tp, sl decimal.Decimal) {
	if side == SideLong {
		return ref.Add(takeProfit), ref.Sub(stopLoss)
	}
	return ref.Sub(takeProfit), ref.Add(stopLoss)
}

// Exit is the result of a position reaching one of its bracket prices.
type Exit struct {
	Outcome string
	Net     decimal.Decimal
}

// EvaluateExit checks price against the bracket. Take profit wins when both
// are reached on the same tick. Net is the bracket distance, not the fill.
func EvaluateExit(side Side, price, entry, takeProfit, stopLoss decimal.Decimal) (Exit, bool) {
	hitTP := (side == SideLong && price.GreaterThanOrEqual(takeProfit)) ||
		(side == SideShort && price.LessThanOrEqual(takeProfit))
	if hitTP {
		return Exit{Outcome: model.OutcomeProfit, Net: takeProfit.Sub(entry).Abs()}, true
	}

	hitSL := (side == SideLong && price.LessThanOrEqual(stopLoss)) ||
		(side == SideShort && price.GreaterThanOrEqual(stopLoss))
	if hitSL {
		return Exit{Outcome: model.OutcomeLoss, Net: stopLoss.Sub(entry).Abs().Neg()}, true
	}
	return Exit{}, false
}
