package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"lobengine/internal/book"
)

// fillMessage is the public, read-only shape broadcast for every fill —
// deliberately thinner than book.TradesNotification, which exposes a live
// reference back into the engine's own Order. AveragePrice and
// TotalNotional are decimal.Decimal, not float64: subscribers render these
// straight to a UI or a log line, so the rounding happens once here rather
// than being left to whatever formatting each subscriber picks.
type fillMessage struct {
	Ticker        string          `json:"ticker"`
	TraderID      uint64          `json:"trader_id"`
	OrderID       uint64          `json:"order_id"`
	Side          string          `json:"side"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	TotalNotional decimal.Decimal `json:"total_notional"`
	Volume        uint64          `json:"volume"`
}

// StreamHandler broadcasts market-data events to every connected
// websocket client. It is read-only from the client's perspective —
// nothing a client sends is ever parsed into an order.
type StreamHandler struct {
	port int

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewStreamHandler constructs a handler listening for websocket upgrades
// on the given port. Port 0 disables the endpoint; Serve becomes a no-op.
func NewStreamHandler(port int) *StreamHandler {
	return &StreamHandler{
		port:     port,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// BroadcastFills fans a batch's notifications out to every connected
// subscriber as individual fill messages.
func (s *StreamHandler) BroadcastFills(ticker string, notifications map[uint64][]*book.TradesNotification) {
	for traderID, list := range notifications {
		for _, n := range list {
			msg := fillMessage{
				Ticker:        ticker,
				TraderID:      traderID,
				OrderID:       n.OrderID,
				Side:          n.Side.String(),
				AveragePrice:  n.AverageNotional(),
				TotalNotional: decimal.NewFromFloat(n.TotalNotional).Round(2),
				Volume:        n.TotalFilledVolume,
			}
			s.broadcast(msg)
		}
	}
}

func (s *StreamHandler) broadcast(msg fillMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed marshalling fill message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debug().Err(err).Msg("dropping unresponsive stream subscriber")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *StreamHandler) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("stream subscriber connected")

	// Subscribers never send anything meaningful; read and discard until
	// the connection closes so the server notices disconnects promptly.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Serve runs the websocket upgrade endpoint until ctx is cancelled.
func (s *StreamHandler) Serve(ctx context.Context) error {
	if s.port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleUpgrade)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().Int("port", s.port).Msg("market data stream listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
