package engine

import (
	"errors"
	"fmt"

	"lobengine/internal/book"
)

// Reporter receives trade notifications as they are produced, so a
// collaborator (the TCP service, a websocket stream) can forward them
// without the engine itself knowing anything about transport. The core
// library never calls out to the network directly.
type Reporter interface {
	ReportTrades(ticker string, notifications map[uint64][]*book.TradesNotification)
}

// NopReporter discards every notification; it is the default collaborator
// for engines constructed without one (tests, offline batch replays).
type NopReporter struct{}

func (NopReporter) ReportTrades(string, map[uint64][]*book.TradesNotification) {}

// Engine owns one OrderBook per ticker and routes every operation to the
// right one. Per spec.md §5, each OrderBook is independently
// single-threaded; the Engine itself adds no synchronization of its own,
// so a caller serving multiple tickers concurrently must serialize access
// per ticker (the worker pool in internal/server does this by sharding
// work on ticker).
type Engine struct {
	Books    map[string]*OrderBook
	Reporter Reporter
}

// New constructs an engine with one default-configured OrderBook per
// ticker. Tickers discovered later (an order for an unknown ticker) are
// not created implicitly — PlaceOrder returns ErrUnknownTicker instead,
// so a misconfigured client fails loudly rather than opening a silent
// new market.
func New(tickers ...string) *Engine {
	e := &Engine{
		Books:    make(map[string]*OrderBook, len(tickers)),
		Reporter: NopReporter{},
	}
	for _, ticker := range tickers {
		e.Books[ticker] = NewDefault()
	}
	return e
}

// AddTicker registers a new tradable symbol with default wheel bounds. A
// no-op if the ticker already exists.
func (e *Engine) AddTicker(ticker string) {
	if _, ok := e.Books[ticker]; ok {
		return
	}
	e.Books[ticker] = NewDefault()
}

// ErrUnknownTicker is returned by any operation naming a ticker the engine
// was never configured to trade.
var ErrUnknownTicker = errors.New("engine: unknown ticker")

// PlaceOrder submits a single order to its ticker's book and forwards any
// resulting notifications to the configured Reporter.
func (e *Engine) PlaceOrder(ticker string, order *book.Order) error {
	ob, ok := e.Books[ticker]
	if !ok {
		return ErrUnknownTicker
	}
	notifications, err := ob.ProcessOrders([]*book.Order{order})
	if err != nil {
		return fmt.Errorf("engine: placing order on %s: %w", ticker, err)
	}
	if len(notifications) > 0 {
		e.Reporter.ReportTrades(ticker, notifications)
	}
	return nil
}

// CancelOrder cancels a resting order by id on the given ticker's book. A
// miss (already filled, expired, or never existed) is a benign no-op per
// spec.md §7.2.
func (e *Engine) CancelOrder(ticker string, orderID uint64) error {
	ob, ok := e.Books[ticker]
	if !ok {
		return ErrUnknownTicker
	}
	ob.ProcessCancellations([]uint64{orderID})
	return nil
}

// TickerSnapshot is a point-in-time read of one ticker's resting depth and
// best prices. BookSnapshot returns one for a caller (internal/server) that
// wants to report or log it — the engine itself never logs on its own.
type TickerSnapshot struct {
	BidDepth uint64
	AskDepth uint64
	BestBid  float64
	HasBid   bool
	BestAsk  float64
	HasAsk   bool
}

// AdvanceAll ticks every ticker's expiration wheel forward once and returns
// the volume expired per ticker, for the tickers where something expired.
// Tickers with nothing to report are omitted from the result rather than
// logged here; a collaborator decides what, if anything, to do with them.
func (e *Engine) AdvanceAll() map[string]uint64 {
	expired := make(map[string]uint64)
	for ticker, ob := range e.Books {
		before := ob.BidDepth() + ob.AskDepth()
		ob.Advance()
		after := ob.BidDepth() + ob.AskDepth()
		if after < before {
			expired[ticker] = before - after
		}
	}
	return expired
}

// BookSnapshot reads a ticker's current resting depth and best prices. The
// second return is false for an unknown ticker.
func (e *Engine) BookSnapshot(ticker string) (TickerSnapshot, bool) {
	ob, ok := e.Books[ticker]
	if !ok {
		return TickerSnapshot{}, false
	}
	snap := TickerSnapshot{BidDepth: ob.BidDepth(), AskDepth: ob.AskDepth()}
	snap.BestBid, snap.HasBid = ob.BestBid()
	snap.BestAsk, snap.HasAsk = ob.BestAsk()
	return snap, true
}
