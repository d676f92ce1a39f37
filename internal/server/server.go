// Package server is the TCP collaborator sitting on top of the matching
// engine: it decodes wire requests, drives the engine through its public
// contract, and writes back execution reports. The engine itself never
// imports this package.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/book"
	"lobengine/internal/engine"
	"lobengine/internal/wire"
)

const (
	maxMessageSize     = 4 * 1024
	defaultWorkerCount = 10
	connReadTimeout    = 5 * time.Second
	expirationInterval = time.Second
)

var (
	ErrImproperConversion = errors.New("server: improper task type conversion")
)

// Server is a TCP front end for an engine.Engine. One connection handles
// one client's full session; each inbound message is processed and
// replied to on that same connection before the next is read.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    *WorkerPool
	metrics *Metrics
	stream  *StreamHandler

	cancel context.CancelFunc
}

// New constructs a server bound to address:port, driving engine and
// optionally broadcasting fills over stream (nil disables streaming).
func New(address string, port int, eng *engine.Engine, stream *StreamHandler) *Server {
	s := &Server{
		address: address,
		port:    port,
		engine:  eng,
		pool:    NewWorkerPool(defaultWorkerCount),
		metrics: NewMetrics(),
		stream:  stream,
	}
	eng.Reporter = s
	return s
}

// WithMetricsPort overrides the default /metrics listen port.
func (s *Server) WithMetricsPort(port int) *Server {
	s.metrics.WithPort(port)
	return s
}

// ReportTrades implements engine.Reporter: every notification produced by
// a process_orders batch that passes ValidateOwner is pushed to the public
// stream (if configured) and counted in the traded-volume metric; one that
// fails is logged and dropped. Private per-trader execution reports are
// written synchronously by handleConnection instead, since this server
// never holds a long-lived handle to a client's socket between requests.
func (s *Server) ReportTrades(ticker string, notifications map[uint64][]*book.TradesNotification) {
	var totalVolume uint64
	valid := make(map[uint64][]*book.TradesNotification, len(notifications))
	for traderID, list := range notifications {
		for _, n := range list {
			if err := n.ValidateOwner(traderID); err != nil {
				log.Error().Err(err).Uint64("trader_id", traderID).Uint64("order_id", n.OrderID).Msg("aggregator routing bug")
				continue
			}
			totalVolume += n.TotalFilledVolume
			valid[traderID] = append(valid[traderID], n)
		}
	}
	s.metrics.TradesVolume.WithLabelValues(ticker).Add(float64(totalVolume) / 2)

	if s.stream != nil {
		s.stream.BroadcastFills(ticker, valid)
	}
}

// Shutdown cancels the server's context, unwinding the listener and every
// worker.
func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks accepting connections until ctx is cancelled or a fatal
// error brings the supervising tomb down.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.Shutdown()

	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	s.pool.Run(t, s.handleConnection)
	t.Go(func() error { return s.runExpirationTicker(ctx) })

	if s.metrics != nil {
		t.Go(func() error { return s.metrics.Serve(ctx) })
	}
	if s.stream != nil {
		t.Go(func() error { return s.stream.Serve(ctx) })
	}

	log.Info().Str("address", listener.Addr().String()).Msg("server listening")

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					log.Error().Err(err).Msg("accept failed")
					continue
				}
			}
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
			s.pool.AddTask(conn)
		}
	})

	<-ctx.Done()
	return t.Wait()
}

// runExpirationTicker advances every ticker's expiration wheel once per
// expirationInterval and logs whatever came off it. The engine itself never
// logs on its own behalf (internal/book and internal/engine stay silent);
// this is the collaborator that decides expired volume is worth a log line.
func (s *Server) runExpirationTicker(ctx context.Context) error {
	ticker := time.NewTicker(expirationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for symbol, volume := range s.engine.AdvanceAll() {
				log.Debug().Str("ticker", symbol).Uint64("expired_volume", volume).Msg("wheel advanced")
				s.logBookSnapshot(symbol)
			}
		}
	}
}

// logBookSnapshot writes a debug-level dump of one ticker's resting depth
// and best prices, fed by engine.Engine.BookSnapshot.
func (s *Server) logBookSnapshot(ticker string) {
	snap, ok := s.engine.BookSnapshot(ticker)
	if !ok {
		log.Warn().Str("ticker", ticker).Msg("snapshot requested for unknown ticker")
		return
	}
	event := log.Debug().
		Str("ticker", ticker).
		Uint64("bid_depth", snap.BidDepth).
		Uint64("ask_depth", snap.AskDepth)
	if snap.HasBid {
		event = event.Float64("best_bid", snap.BestBid)
	}
	if snap.HasAsk {
		event = event.Float64("best_ask", snap.BestAsk)
	}
	event.Msg("order book snapshot")
}

// handleConnection owns one client connection end to end: read a frame,
// decode, dispatch, reply, repeat until the connection errors out or the
// tomb is dying. Unlike the original pool design this does not requeue
// itself as a fresh task — one worker goroutine stays with its connection
// for its whole lifetime, which keeps request/reply ordering trivial.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	defer conn.Close()

	buf := make([]byte, maxMessageSize)
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(connReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
			return nil
		}

		reply := s.dispatch(buf[:n])
		if reply != nil {
			if _, err := conn.Write(reply); err != nil {
				log.Error().Err(err).Msg("failed writing reply")
				return nil
			}
		}
	}
}

func (s *Server) dispatch(frame []byte) []byte {
	msg, err := wire.Decode(frame)
	if err != nil {
		log.Error().Err(err).Msg("failed decoding message")
		return wire.ErrorReportFor(uuid.Nil, err).Serialize()
	}

	switch m := msg.(type) {
	case *wire.NewOrderMessage:
		return s.handleNewOrder(m)
	case *wire.CancelOrderMessage:
		return s.handleCancelOrder(m)
	default:
		log.Error().Int("type", int(msg.GetType())).Msg("unhandled message type")
		return nil
	}
}

func (s *Server) handleNewOrder(m *wire.NewOrderMessage) []byte {
	var traderID *uint64
	if m.HasTraderID {
		traderID = &m.TraderID
	}
	var lifetime *uint64
	if m.HasLifetime {
		lifetime = &m.Lifetime
	}

	side := book.Sell
	if m.IsBid {
		side = book.Buy
	}

	ob, ok := s.engine.Books[m.Ticker]
	if !ok {
		return wire.ErrorReportFor(m.CorrelationID, engine.ErrUnknownTicker).Serialize()
	}

	var (
		order *book.Order
		err   error
	)
	if m.IsMarket {
		order, err = ob.NewMarketOrder(m.Volume, side, traderID)
	} else {
		order, err = ob.NewOrder(m.Price, m.Volume, side, traderID, lifetime)
	}
	if err != nil {
		return wire.ErrorReportFor(m.CorrelationID, err).Serialize()
	}

	notifications, err := ob.ProcessOrders([]*book.Order{order})
	if err != nil {
		return wire.ErrorReportFor(m.CorrelationID, err).Serialize()
	}
	if len(notifications) > 0 {
		s.ReportTrades(m.Ticker, notifications)
	}

	s.metrics.OrdersPlaced.WithLabelValues(m.Ticker).Inc()

	return (&wire.Report{
		Type:          wire.ExecutionReport,
		CorrelationID: m.CorrelationID,
		OrderID:       order.ID,
		IsBid:         m.IsBid,
		Price:         m.Price,
		Volume:        order.Volume,
	}).Serialize()
}

func (s *Server) handleCancelOrder(m *wire.CancelOrderMessage) []byte {
	if err := s.engine.CancelOrder(m.Ticker, m.OrderID); err != nil {
		return wire.ErrorReportFor(m.CorrelationID, err).Serialize()
	}
	s.metrics.OrdersCancelled.WithLabelValues(m.Ticker).Inc()
	return (&wire.Report{
		Type:          wire.ExecutionReport,
		CorrelationID: m.CorrelationID,
		OrderID:       m.OrderID,
	}).Serialize()
}
