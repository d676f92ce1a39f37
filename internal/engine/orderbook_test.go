package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobengine/internal/book"
)

func trader(id uint64) *uint64 { return &id }
func ttl(v uint64) *uint64     { return &v }

// TestScenario_QuoteMatchCancelExpiry walks spec.md §8 scenario 1 end to
// end through a single OrderBook.
func TestScenario_QuoteMatchCancelExpiry(t *testing.T) {
	ob := NewDefault()

	o1, err := ob.NewOrder(100, 10, book.Buy, trader(101), ttl(1))
	require.NoError(t, err)
	o2, err := ob.NewOrder(101, 5, book.Buy, trader(101), nil)
	require.NoError(t, err)
	o3, err := ob.NewOrder(102, 7, book.Sell, trader(201), nil)
	require.NoError(t, err)
	o4, err := ob.NewOrder(103, 8, book.Sell, trader(202), nil)
	require.NoError(t, err)

	_, err = ob.ProcessOrders([]*book.Order{o1, o2, o3, o4})
	require.NoError(t, err)

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 101.0, bid)

	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 102.0, ask)

	spread, ok := ob.Spread()
	require.True(t, ok)
	assert.Equal(t, 1.0, spread)

	mid, ok := ob.MidPrice()
	require.True(t, ok)
	assert.Equal(t, 101.5, mid)

	unfilled := ob.UnfilledOrders(101)
	require.Len(t, unfilled, 2)
	var found bool
	for _, u := range unfilled {
		if u.ID == o1.ID {
			found = true
			assert.Equal(t, 100.0, u.Price)
			assert.Equal(t, uint64(10), u.Volume)
		}
	}
	assert.True(t, found)

	sweep, err := ob.NewMarketOrder(8, book.Sell, trader(203))
	require.NoError(t, err)
	notifs, err := ob.ProcessOrders([]*book.Order{sweep})
	require.NoError(t, err)

	traderNotifs := notifs[203]
	require.Len(t, traderNotifs, 1)
	n := traderNotifs[0]
	assert.Equal(t, uint64(5), n.PriceVolume[101])
	assert.Equal(t, uint64(3), n.PriceVolume[100])

	bid, ok = ob.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, uint64(7), ob.BidDepth())

	ob.ProcessCancellations([]uint64{o4.ID})
	assert.Equal(t, uint64(7), ob.AskDepth())

	ob.Advance()
	_, ok = ob.BestBid()
	assert.False(t, ok)

	ob.Clear()
	assert.Equal(t, uint64(0), ob.BidDepth())
	assert.Equal(t, uint64(0), ob.AskDepth())
}

// TestScenario_SameLevelFIFO is spec.md §8 scenario 2.
func TestScenario_SameLevelFIFO(t *testing.T) {
	ob := NewDefault()
	a, _ := ob.NewOrder(100, 5, book.Buy, nil, nil)
	b, _ := ob.NewOrder(100, 5, book.Buy, nil, nil)
	c, _ := ob.NewOrder(100, 5, book.Buy, nil, nil)
	_, err := ob.ProcessOrders([]*book.Order{a, b, c})
	require.NoError(t, err)

	sweep, _ := ob.NewMarketOrder(7, book.Sell, nil)
	_, err = ob.ProcessOrders([]*book.Order{sweep})
	require.NoError(t, err)

	assert.Equal(t, uint64(0), a.Volume)
	assert.Equal(t, uint64(3), b.Volume)
	assert.Equal(t, uint64(5), c.Volume)
	assert.Equal(t, uint64(8), ob.BidDepth())
}

// TestScenario_PartialFillPreservesPriority is spec.md §8 scenario 3.
func TestScenario_PartialFillPreservesPriority(t *testing.T) {
	ob := NewDefault()
	a, _ := ob.NewOrder(100, 10, book.Buy, nil, nil)
	b, _ := ob.NewOrder(100, 10, book.Buy, nil, nil)
	_, err := ob.ProcessOrders([]*book.Order{a, b})
	require.NoError(t, err)

	sweep1, _ := ob.NewMarketOrder(3, book.Sell, nil)
	_, err = ob.ProcessOrders([]*book.Order{sweep1})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), a.Volume)

	sweep2, _ := ob.NewMarketOrder(5, book.Sell, nil)
	_, err = ob.ProcessOrders([]*book.Order{sweep2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a.Volume)
	assert.Equal(t, uint64(10), b.Volume)
}

// TestScenario_PricePriorityAcrossLevels is spec.md §8 scenario 4.
func TestScenario_PricePriorityAcrossLevels(t *testing.T) {
	ob := NewDefault()
	lo, _ := ob.NewOrder(99, 10, book.Buy, nil, nil)
	mid, _ := ob.NewOrder(100, 10, book.Buy, nil, nil)
	hi, _ := ob.NewOrder(101, 10, book.Buy, nil, nil)
	_, err := ob.ProcessOrders([]*book.Order{lo, mid, hi})
	require.NoError(t, err)

	sweep, _ := ob.NewMarketOrder(15, book.Sell, nil)
	notifs, err := ob.ProcessOrders([]*book.Order{sweep})
	require.NoError(t, err)
	_ = notifs

	assert.Equal(t, uint64(0), hi.Volume)
	assert.Equal(t, uint64(5), mid.Volume)
	assert.Equal(t, uint64(10), lo.Volume)
}

// TestScenario_EmptyLevelReap is spec.md §8 scenario 5.
func TestScenario_EmptyLevelReap(t *testing.T) {
	ob := NewDefault()
	a, _ := ob.NewOrder(100, 5, book.Buy, nil, nil)
	_, err := ob.ProcessOrders([]*book.Order{a})
	require.NoError(t, err)

	ob.ProcessCancellations([]uint64{a.ID})

	_, ok := ob.BestBid()
	assert.False(t, ok)
	_, ok = ob.BestBid()
	assert.False(t, ok)
}

// TestScenario_WheelWrapAroundNoDoubleCancel is spec.md §8 scenario 6.
func TestScenario_WheelWrapAroundNoDoubleCancel(t *testing.T) {
	ob, err := New(1, 4)
	require.NoError(t, err)

	for tick := 0; tick < 4; tick++ {
		o, err := ob.NewOrder(100, 5, book.Buy, nil, ttl(1))
		require.NoError(t, err)
		_, err = ob.ProcessOrders([]*book.Order{o})
		require.NoError(t, err)
		ob.Advance()
	}

	assert.Equal(t, uint64(0), ob.BidDepth())
}

func TestProcessCancellations_UnknownIDIsBenign(t *testing.T) {
	ob := NewDefault()
	assert.NotPanics(t, func() {
		ob.ProcessCancellations([]uint64{9999})
	})
}

func TestNewOrder_MonotonicIDs(t *testing.T) {
	ob := NewDefault()
	a, err := ob.NewOrder(100, 1, book.Buy, nil, nil)
	require.NoError(t, err)
	b, err := ob.NewOrder(100, 1, book.Buy, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
}

func TestAggregator_PriceVolumeSumsToTotalFilled(t *testing.T) {
	ob := NewDefault()
	resting, _ := ob.NewOrder(100, 10, book.Buy, trader(1), nil)
	_, err := ob.ProcessOrders([]*book.Order{resting})
	require.NoError(t, err)

	taker, _ := ob.NewOrder(100, 10, book.Sell, trader(2), nil)
	notifs, err := ob.ProcessOrders([]*book.Order{taker})
	require.NoError(t, err)

	n := notifs[1][0]
	var sum uint64
	for _, v := range n.PriceVolume {
		sum += v
	}
	assert.Equal(t, n.TotalFilledVolume, sum)
	assert.Equal(t, uint64(0), n.RemainingVolume())
	assert.True(t, n.IsFilled())
}
