package book

import (
	"github.com/tidwall/btree"
)

// PriceBook holds every resting order on one side of the market: a price
// priority structure over occupied prices, the FIFO level at each
// occupied price, and an id index covering every order resident on this
// side. Bids order the priority tree descending (best = highest price);
// asks order it ascending (best = lowest price).
type PriceBook struct {
	IsBidSide bool

	prices    *btree.BTreeG[float64]
	levels    map[float64]*PriceLevel
	orderByID map[uint64]*orderNode
}

// NewPriceBook constructs an empty book for one side of the market.
func NewPriceBook(isBidSide bool) *PriceBook {
	var less func(a, b float64) bool
	if isBidSide {
		less = func(a, b float64) bool { return a > b } // descending: best bid first
	} else {
		less = func(a, b float64) bool { return a < b } // ascending: best ask first
	}
	return &PriceBook{
		IsBidSide: isBidSide,
		prices:    btree.NewBTreeG(less),
		levels:    make(map[float64]*PriceLevel),
		orderByID: make(map[uint64]*orderNode),
	}
}

// Add inserts a resting order into its price level, creating the level
// (and indexing its price in the priority tree) on first occupancy.
func (pb *PriceBook) Add(order *Order) {
	lvl, ok := pb.levels[order.Price]
	if !ok {
		lvl = NewPriceLevel(order.Price)
		pb.levels[order.Price] = lvl
		pb.prices.Set(order.Price)
	}
	node := lvl.Add(order)
	pb.orderByID[order.ID] = node
}

// Cancel removes a specific resident order in O(1) via its node handle.
// The emptied level, if any, is left in the priority tree for lazy
// reaping by GetBestPrice — see spec.md §4.3 and §9 ("Lazy heap cleanup").
// ErrOrderNotFound is a contract violation: the caller (PriceBook's own
// owner, the engine) is expected to have already confirmed the id resides
// on this side before calling.
func (pb *PriceBook) Cancel(order *Order) error {
	node, ok := pb.orderByID[order.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if err := node.level.Cancel(order); err != nil {
		return err
	}
	delete(pb.orderByID, order.ID)
	return nil
}

// Lookup returns the resident order for an id, if any.
func (pb *PriceBook) Lookup(id uint64) (*Order, bool) {
	node, ok := pb.orderByID[id]
	if !ok {
		return nil, false
	}
	return node.order, true
}

// Orders returns every order resident on this side. Iteration order is
// unspecified (spec.md §9).
func (pb *PriceBook) Orders() []*Order {
	orders := make([]*Order, 0, len(pb.orderByID))
	for _, node := range pb.orderByID {
		orders = append(orders, node.order)
	}
	return orders
}

// GetBestPrice returns the best resting price on this side, reaping any
// price levels the priority tree has gone stale on (cancelled down to
// empty) along the way. The second return is false iff no volume rests
// on this side at all.
func (pb *PriceBook) GetBestPrice() (float64, bool) {
	for {
		price, ok := pb.prices.Min()
		if !ok {
			return 0, false
		}
		lvl := pb.levels[price]
		if lvl.IsEmpty() {
			pb.prices.Delete(price)
			delete(pb.levels, price)
			continue
		}
		return price, true
	}
}

func (pb *PriceBook) crosses(bestPrice float64, incoming *Order) bool {
	if pb.IsBidSide {
		return bestPrice >= incoming.Price
	}
	return bestPrice <= incoming.Price
}

// Fill matches incoming, which must be on the opposite side, against this
// book's resting liquidity in strict price-time priority: it walks best
// prices first, drains each level's FIFO before moving to the next, and
// stops when either no crossable level remains or incoming is exhausted.
// Every order fully consumed along the way is dropped from the id index.
func (pb *PriceBook) Fill(incoming *Order) ([]Trade, error) {
	if incoming.Side == pb.IsBidSideAsOrderSide() {
		return nil, ErrSameSideFill
	}

	var trades []Trade
	for incoming.Volume > 0 {
		best, ok := pb.GetBestPrice()
		if !ok || !pb.crosses(best, incoming) {
			break
		}

		lvl := pb.levels[best]
		levelTrades, filled := lvl.Fill(incoming)
		trades = append(trades, levelTrades...)
		for _, order := range filled {
			delete(pb.orderByID, order.ID)
		}
	}
	return trades, nil
}

// IsBidSideAsOrderSide maps this book's side to the Order.Side value that
// would be "same side" as it, so Fill can reject same-side matching.
func (pb *PriceBook) IsBidSideAsOrderSide() Side {
	return Side(pb.IsBidSide)
}

// Depth is the total resting volume across every level on this side. Not
// on any critical path; callers that need it often should cache it.
func (pb *PriceBook) Depth() uint64 {
	var total uint64
	for _, lvl := range pb.levels {
		total += lvl.Volume
	}
	return total
}

// Levels returns every occupied price level, sorted best-to-worst. This is
// a display/testing aid (spec.md §6's display()), not a hot path.
func (pb *PriceBook) Levels() []*PriceLevel {
	var out []*PriceLevel
	pb.prices.Scan(func(price float64) bool {
		if lvl := pb.levels[price]; lvl != nil && !lvl.IsEmpty() {
			out = append(out, lvl)
		}
		return true
	})
	return out
}
