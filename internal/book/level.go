package book

// orderNode is the intrusive list node backing a PriceLevel's FIFO. Each
// resident Order points at the node that holds it, and PriceBook's
// order_map stores the same node — so cancel-by-id can unlink in O(1)
// without first walking the level to find the order (spec.md §4.1).
type orderNode struct {
	order *Order
	level *PriceLevel
	prev  *orderNode
	next  *orderNode
}

// PriceLevel is a FIFO queue of resting orders at a single price, plus a
// running volume total kept in lockstep with the queue's contents.
type PriceLevel struct {
	Price  float64
	Volume uint64

	head *orderNode
	tail *orderNode
	len  int
}

// NewPriceLevel creates an empty level at the given price.
func NewPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// IsEmpty reports whether any orders remain resting at this level.
func (lvl *PriceLevel) IsEmpty() bool {
	return lvl.len == 0
}

// Len returns the number of discrete resting orders (not total volume).
func (lvl *PriceLevel) Len() int {
	return lvl.len
}

// Head returns the oldest resting order at this level, or nil if empty.
func (lvl *PriceLevel) Head() *Order {
	if lvl.head == nil {
		return nil
	}
	return lvl.head.order
}

// Add appends order to the tail of the FIFO and returns the node handle
// that PriceBook must retain in its id index for O(1) future cancellation.
func (lvl *PriceLevel) Add(order *Order) *orderNode {
	node := &orderNode{order: order, level: lvl}
	order.node = node

	if lvl.tail == nil {
		lvl.head = node
		lvl.tail = node
	} else {
		node.prev = lvl.tail
		lvl.tail.next = node
		lvl.tail = node
	}
	lvl.len++
	lvl.Volume += order.Volume
	return node
}

// popHead removes and returns the oldest node. Returns ErrLevelEmpty if
// nothing is resting.
func (lvl *PriceLevel) popHead() (*orderNode, error) {
	if lvl.head == nil {
		return nil, ErrLevelEmpty
	}
	node := lvl.head
	lvl.unlink(node)
	return node, nil
}

// unlink removes node from the doubly linked list in O(1). It does not
// adjust lvl.Volume — callers that remove volume-bearing orders must do
// that themselves, since Fill and Cancel account for volume differently
// (Fill decrements incrementally as it trades; Cancel removes the whole
// remaining volume at once).
func (lvl *PriceLevel) unlink(node *orderNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		lvl.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		lvl.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.order.node = nil
	lvl.len--
}

// Cancel removes a specific resting order from this level in O(1) using
// its node handle. Returns ErrOrderNotFound if the order does not belong
// to this level (including if it has already been removed).
func (lvl *PriceLevel) Cancel(order *Order) error {
	node := order.node
	if node == nil || node.level != lvl {
		return ErrOrderNotFound
	}
	lvl.unlink(node)
	lvl.Volume -= order.Volume
	return nil
}

// Fill matches incoming against resting orders at this level in strict
// FIFO order, decrementing both sides as it goes. It stops when either the
// level empties or incoming is exhausted, and returns every trade executed
// plus every resting order that was fully consumed (so the caller can drop
// them from its id index).
func (lvl *PriceLevel) Fill(incoming *Order) ([]Trade, []*Order) {
	var trades []Trade
	var filled []*Order

	for !lvl.IsEmpty() && incoming.Volume > 0 {
		head := lvl.Head()

		tradeVolume := incoming.Volume
		if head.Volume < tradeVolume {
			tradeVolume = head.Volume
		}

		head.Volume -= tradeVolume
		incoming.Volume -= tradeVolume
		lvl.Volume -= tradeVolume

		bid, ask := head, incoming
		if incoming.Side == Buy {
			bid, ask = incoming, head
		}
		trades = append(trades, Trade{BidOrder: bid, AskOrder: ask, Price: lvl.Price, Volume: tradeVolume})

		if head.Volume == 0 {
			node, _ := lvl.popHead()
			filled = append(filled, node.order)
		}
	}

	return trades, filled
}
