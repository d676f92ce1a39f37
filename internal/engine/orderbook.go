// Package engine implements the price-time priority limit order book
// façade (spec.md §4.4): it owns both sides of the market, the expiration
// wheel, and the batch-level trade-to-notification aggregation that turns
// raw fills into per-trader reports.
package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"lobengine/internal/book"
)

const (
	DefaultMinLifetime = 3
	DefaultMaxLifetime = 10_000
)

// UnfilledOrder is a snapshot row returned by UnfilledOrders; iteration
// order across calls is unspecified (spec.md §9).
type UnfilledOrder struct {
	ID     uint64
	Price  float64
	Volume uint64
}

// tradeTotals is one [volume_traded, total_exchanged] entry recorded per
// ProcessOrders batch (spec.md §4.4's trade_history).
type tradeTotals struct {
	Volume   uint64
	Notional float64
}

// OrderBook is one symbol's matching engine: two PriceBooks, one
// ExpirationWheel, and the batch bookkeeping process_orders needs to
// aggregate fills per trader. It is not safe for concurrent use — per
// spec.md §5 the engine runs single-threaded and run-to-completion;
// callers needing parallelism shard by symbol, one OrderBook per shard.
type OrderBook struct {
	bids  *book.PriceBook
	asks  *book.PriceBook
	wheel *book.ExpirationWheel

	nextID       uint64
	tradeHistory []tradeTotals
}

// New constructs an order book with the given wheel bounds. min_lifetime
// is the default applied to orders that don't set one explicitly;
// max_lifetime bounds every order's lifetime via modulo wrap-around
// (spec.md §4.2). Both must be positive with min strictly less than max.
func New(minLifetime, maxLifetime uint64) (*OrderBook, error) {
	wheel, err := book.NewExpirationWheel(minLifetime, maxLifetime)
	if err != nil {
		return nil, err
	}
	return &OrderBook{
		bids:  book.NewPriceBook(true),
		asks:  book.NewPriceBook(false),
		wheel: wheel,
	}, nil
}

// NewDefault constructs an order book with spec.md §6's default wheel
// bounds (min_lifetime=3, max_lifetime=10000).
func NewDefault() *OrderBook {
	ob, _ := New(DefaultMinLifetime, DefaultMaxLifetime)
	return ob
}

// nextOrderID hands out this engine's per-instance monotonic id. Per
// spec.md §6/§9, ids are unique within this engine's lifetime, not
// globally across every OrderBook a process constructs — a REDESIGN FLAG
// applied so independently constructed engines in the same test binary
// cannot interfere with each other's id sequences.
func (ob *OrderBook) nextOrderID() uint64 {
	ob.nextID++
	return ob.nextID
}

// NewOrder allocates an id from this engine and constructs a limit order.
func (ob *OrderBook) NewOrder(price float64, volume uint64, side book.Side, traderID *uint64, lifetime *uint64) (*book.Order, error) {
	return book.NewOrder(ob.nextOrderID(), price, volume, side, traderID, lifetime)
}

// NewMarketOrder allocates an id from this engine and constructs a market
// order; market orders never rest regardless of residual volume.
func (ob *OrderBook) NewMarketOrder(volume uint64, side book.Side, traderID *uint64) (*book.Order, error) {
	return book.NewMarketOrder(ob.nextOrderID(), volume, side, traderID)
}

// BestBid returns the highest resting buy price, or ok=false if the bid
// side is empty.
func (ob *OrderBook) BestBid() (float64, bool) {
	return ob.bids.GetBestPrice()
}

// BestAsk returns the lowest resting sell price, or ok=false if the ask
// side is empty.
func (ob *OrderBook) BestAsk() (float64, bool) {
	return ob.asks.GetBestPrice()
}

// Spread is best_ask - best_bid, rounded to 2 decimal places, or ok=false
// if either side is empty. spec.md §9 flags the original source as
// inconsistent about rounding; this implementation always rounds.
func (ob *OrderBook) Spread() (float64, bool) {
	bid, bidOK := ob.BestBid()
	ask, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return round2(ask - bid), true
}

// MidPrice is (best_ask + best_bid) / 2, rounded to 2 decimal places, or
// ok=false if either side is empty.
func (ob *OrderBook) MidPrice() (float64, bool) {
	bid, bidOK := ob.BestBid()
	ask, askOK := ob.BestAsk()
	if !bidOK || !askOK {
		return 0, false
	}
	return round2((ask + bid) / 2), true
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// BidDepth is the total resting volume on the buy side.
func (ob *OrderBook) BidDepth() uint64 { return ob.bids.Depth() }

// AskDepth is the total resting volume on the sell side.
func (ob *OrderBook) AskDepth() uint64 { return ob.asks.Depth() }

// ProcessOrders matches each order against the opposite side in sequence,
// rests any limit order with residual volume, and returns every trader's
// fill notifications for this batch, keyed by trader id (spec.md §4.4).
// Each order in the batch fully matches, up to exhaustion or no-cross,
// before the next order in the batch begins — the trade sequence is a
// pure function of (initial state, input sequence).
func (ob *OrderBook) ProcessOrders(orders []*book.Order) (map[uint64][]*book.TradesNotification, error) {
	var allTrades []book.Trade

	for _, order := range orders {
		var (
			trades []book.Trade
			err    error
		)
		if order.Side == book.Buy {
			trades, err = ob.asks.Fill(order)
		} else {
			trades, err = ob.bids.Fill(order)
		}
		if err != nil {
			return nil, fmt.Errorf("matching order %d: %w", order.ID, err)
		}
		allTrades = append(allTrades, trades...)

		if order.Volume > 0 && !order.IsMarket {
			ob.wheel.Schedule(order)
			if order.Side == book.Buy {
				ob.bids.Add(order)
			} else {
				ob.asks.Add(order)
			}
		}
	}

	return ob.aggregateTrades(allTrades), nil
}

// aggregateTrades folds a batch's trades into per-(trader, order)
// notifications and appends the batch's totals to trade_history.
func (ob *OrderBook) aggregateTrades(trades []book.Trade) map[uint64][]*book.TradesNotification {
	orderNotifs := make(map[uint64]*book.TradesNotification)
	traderNotifs := make(map[uint64][]*book.TradesNotification)

	var volumeTraded uint64
	var totalExchanged float64

	for _, trade := range trades {
		volumeTraded += trade.Volume
		totalExchanged += trade.Price * float64(trade.Volume)

		for _, order := range [2]*book.Order{trade.BidOrder, trade.AskOrder} {
			if order.TraderID == nil {
				continue
			}
			notif, ok := orderNotifs[order.ID]
			if !ok {
				notif = book.NewTradesNotification(order)
				orderNotifs[order.ID] = notif
				traderNotifs[notif.TraderID] = append(traderNotifs[notif.TraderID], notif)
			}
			notif.AddTrade(trade.Price, trade.Volume)
		}
	}

	ob.tradeHistory = append(ob.tradeHistory, tradeTotals{Volume: volumeTraded, Notional: totalExchanged})
	return traderNotifs
}

// ProcessCancellations cancels each id found on either side of the book.
// An id found on neither side is silently ignored (spec.md §4.4, §7.2) —
// it may already have filled or expired, which the wheel's own expiry
// path routinely triggers.
func (ob *OrderBook) ProcessCancellations(ids []uint64) {
	for _, id := range ids {
		if order, ok := ob.bids.Lookup(id); ok {
			_ = ob.bids.Cancel(order)
			continue
		}
		if order, ok := ob.asks.Lookup(id); ok {
			_ = ob.asks.Cancel(order)
		}
	}
}

// Advance moves the expiration wheel forward one tick and cancels every
// id it emits, via the same benign-miss path as ProcessCancellations.
func (ob *OrderBook) Advance() {
	ob.ProcessCancellations(ob.wheel.Advance())
}

// UnfilledOrders returns every resting order belonging to traderID, across
// both sides. Iteration order is unspecified.
func (ob *OrderBook) UnfilledOrders(traderID uint64) []UnfilledOrder {
	var out []UnfilledOrder
	for _, side := range [2]*book.PriceBook{ob.bids, ob.asks} {
		for _, order := range side.Orders() {
			if order.TraderID != nil && *order.TraderID == traderID {
				out = append(out, UnfilledOrder{ID: order.ID, Price: order.Price, Volume: order.Volume})
			}
		}
	}
	return out
}

// TradeHistory returns the [volume, notional] totals recorded for every
// ProcessOrders batch so far. The slice grows for the engine's lifetime —
// call ResetTradeHistory to bound memory in a long-running service
// (spec.md §9 flags this as an open question, resolved in favor of an
// explicit reset over an implicit ring buffer).
func (ob *OrderBook) TradeHistory() [][2]float64 {
	out := make([][2]float64, len(ob.tradeHistory))
	for i, t := range ob.tradeHistory {
		out[i] = [2]float64{float64(t.Volume), t.Notional}
	}
	return out
}

// ResetTradeHistory discards accumulated trade_history entries.
func (ob *OrderBook) ResetTradeHistory() {
	ob.tradeHistory = nil
}

// Clear resets all book state — both sides, the wheel, and trade history —
// but not the id counter, matching spec.md §6's clear() contract.
func (ob *OrderBook) Clear() {
	wheel, _ := book.NewExpirationWheel(ob.wheel.MinLifetime, ob.wheel.MaxLifetime)
	ob.bids = book.NewPriceBook(true)
	ob.asks = book.NewPriceBook(false)
	ob.wheel = wheel
	ob.tradeHistory = nil
}

// Display writes a human-readable dump of both sides to w. This is a
// testing/debugging aid, not a contractual format (spec.md §6).
func (ob *OrderBook) Display(w io.Writer) {
	fmt.Fprintln(w, "BID PriceBook:")
	for _, lvl := range ob.bids.Levels() {
		fmt.Fprintf(w, "  price=%v volume=%d orders=%d\n", lvl.Price, lvl.Volume, lvl.Len())
	}
	fmt.Fprintln(w, "ASK PriceBook:")
	for _, lvl := range ob.asks.Levels() {
		fmt.Fprintf(w, "  price=%v volume=%d orders=%d\n", lvl.Price, lvl.Volume, lvl.Len())
	}
}

// DisplayStdout is a convenience wrapper matching the teacher's
// zero-argument display() surface.
func (ob *OrderBook) DisplayStdout() {
	ob.Display(os.Stdout)
}
