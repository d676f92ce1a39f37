package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lobengine/internal/book"
)

func TestStreamHandler_BroadcastFillsNoSubscribers(t *testing.T) {
	s := NewStreamHandler(0)

	traderID := uint64(1)
	order, err := book.NewOrder(1, 100.0, 5, book.Buy, &traderID, nil)
	assert.NoError(t, err)
	n := book.NewTradesNotification(order)
	n.AddTrade(100.0, 5)

	assert.NotPanics(t, func() {
		s.BroadcastFills("AAPL", map[uint64][]*book.TradesNotification{traderID: {n}})
	})
}

func TestMetrics_IndependentRegistriesDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
