package book

import "github.com/shopspring/decimal"

// Trade is an ephemeral receipt of one fill event between exactly one bid
// and one ask. It does not survive the process_orders call that produced
// it; callers that need history consult TradesNotification or
// engine.OrderBook's trade history.
type Trade struct {
	BidOrder *Order
	AskOrder *Order
	Price    float64
	Volume   uint64
}

// TradesNotification aggregates every fill a single (trader, order) pair
// experienced during one batch. One instance exists per order per
// process_orders call, even if that order traded at several price levels
// or against several counterparties.
type TradesNotification struct {
	TraderID    uint64
	OrderID     uint64
	Side        Side
	PriceVolume map[float64]uint64

	NumTrades         uint64
	TotalFilledVolume uint64
	TotalNotional     float64
	order             *Order // live reference; RemainingVolume reads through it
}

// NewTradesNotification seeds a notification from the order it tracks. The
// order must have a non-nil TraderID; callers that route fills per-trader
// are expected to check that before constructing one (see
// engine.aggregateTrades).
func NewTradesNotification(order *Order) *TradesNotification {
	return &TradesNotification{
		TraderID:    *order.TraderID,
		OrderID:     order.ID,
		Side:        order.Side,
		PriceVolume: make(map[float64]uint64),
		order:       order,
	}
}

// AddTrade folds one fill into the aggregate.
func (n *TradesNotification) AddTrade(price float64, volume uint64) {
	n.PriceVolume[price] += volume
	n.NumTrades++
	n.TotalFilledVolume += volume
	n.TotalNotional += price * float64(volume)
}

// RemainingVolume reflects the order's live volume as of the end of the
// batch (spec requires end-of-batch semantics, not a frozen snapshot taken
// at notification-creation time).
func (n *TradesNotification) RemainingVolume() uint64 {
	return n.order.Volume
}

// IsFilled is true once the tracked order has no volume left to fill.
func (n *TradesNotification) IsFilled() bool {
	return n.order.Volume == 0
}

// AveragePrice is the volume-weighted average fill price across every
// trade folded into this notification, or zero if nothing has filled yet.
func (n *TradesNotification) AveragePrice() float64 {
	if n.TotalFilledVolume == 0 {
		return 0
	}
	return n.TotalNotional / float64(n.TotalFilledVolume)
}

// AverageNotional is AveragePrice rounded to 2 decimal places via
// shopspring/decimal, for display and reporting call sites (the websocket
// stream, the CLI) that should never hand a raw float average price to a
// human or a downstream consumer. Matching arithmetic never calls this —
// only AveragePrice, which stays exact.
func (n *TradesNotification) AverageNotional() decimal.Decimal {
	return decimal.NewFromFloat(n.AveragePrice()).Round(2)
}

// ValidateOwner returns ErrNotificationOwner if the notification is about
// to be delivered under a trader id it wasn't built for. A mismatch here
// indicates a routing bug in the aggregator, not a benign miss (spec.md
// §7.3): callers that deliver notifications keyed by trader id should
// check this before handing one to its recipient.
func (n *TradesNotification) ValidateOwner(traderID uint64) error {
	if n.TraderID != traderID {
		return ErrNotificationOwner
	}
	return nil
}
