// Package wire implements the binary protocol the TCP service speaks with
// clients: fixed-width headers, big-endian integers, IEEE-754 prices, and
// a uuid correlation id on every request so a client can match an
// execution report back to the order it sent (spec.md §6
// names no wire format for the core library; this is the service layer's
// own contract, a collaborator sitting outside it).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort    = errors.New("wire: message too short")
	ErrInvalidTicker      = errors.New("wire: ticker must be 1-8 bytes")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

type ReportType uint8

const (
	ExecutionReport ReportType = iota
	ErrorReport
)

const TickerLen = 8

// Message format constants. Every length here is the FIXED portion of the
// message; Report additionally carries a variable-length error string whose
// size is itself encoded in its fixed part. NewOrderMessage and
// CancelOrderMessage have no variable-length part.
const (
	headerLen           = 2
	newOrderFixedLen    = 16 + TickerLen + 1 + 1 + 8 + 8 + 1 + 8 + 1 + 8
	cancelOrderFixedLen = 16 + TickerLen + 8
	reportFixedLen      = 1 + 16 + 8 + 8 + 1 + 8 + 8 + 4
)

// Message is implemented by every decoded wire request.
type Message interface {
	GetType() MessageType
}

type baseMessage struct {
	TypeOf MessageType
}

func (m baseMessage) GetType() MessageType { return m.TypeOf }

// NewOrderMessage places one order, limit or market, optionally on behalf
// of a trader and optionally with a bounded lifetime.
type NewOrderMessage struct {
	baseMessage
	CorrelationID uuid.UUID
	Ticker        string
	IsBid         bool
	IsMarket      bool
	Price         float64
	Volume        uint64
	HasTraderID   bool
	TraderID      uint64
	HasLifetime   bool
	Lifetime      uint64
}

// CancelOrderMessage cancels a resting order by the engine-assigned id
// returned in an earlier execution report.
type CancelOrderMessage struct {
	baseMessage
	CorrelationID uuid.UUID
	Ticker        string
	OrderID       uint64
}

// Decode parses one message (header + body, no length prefix). It does no
// framing of its own; internal/server hands it the bytes of a single
// conn.Read, and trailing bytes beyond the fixed body are ignored.
func Decode(msg []byte) (Message, error) {
	if len(msg) < headerLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[headerLen:]

	switch typeOf {
	case NewOrder:
		return decodeNewOrder(body)
	case CancelOrder:
		return decodeCancelOrder(body)
	default:
		return nil, ErrInvalidMessageType
	}
}

func decodeNewOrder(body []byte) (*NewOrderMessage, error) {
	if len(body) < newOrderFixedLen {
		return nil, ErrMessageTooShort
	}
	m := &NewOrderMessage{baseMessage: baseMessage{TypeOf: NewOrder}}

	copy(m.CorrelationID[:], body[0:16])
	off := 16

	m.Ticker = decodeTicker(body[off : off+TickerLen])
	off += TickerLen

	m.IsBid = body[off] != 0
	off++
	m.IsMarket = body[off] != 0
	off++

	m.Price = math.Float64frombits(binary.BigEndian.Uint64(body[off : off+8]))
	off += 8
	m.Volume = binary.BigEndian.Uint64(body[off : off+8])
	off += 8

	m.HasTraderID = body[off] != 0
	off++
	m.TraderID = binary.BigEndian.Uint64(body[off : off+8])
	off += 8

	m.HasLifetime = body[off] != 0
	off++
	m.Lifetime = binary.BigEndian.Uint64(body[off : off+8])

	return m, nil
}

// Encode serializes a NewOrderMessage for a client to send.
func (m *NewOrderMessage) Encode() []byte {
	buf := make([]byte, headerLen+newOrderFixedLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))

	off := headerLen
	copy(buf[off:off+16], m.CorrelationID[:])
	off += 16

	copy(buf[off:off+TickerLen], encodeTicker(m.Ticker))
	off += TickerLen

	buf[off] = boolByte(m.IsBid)
	off++
	buf[off] = boolByte(m.IsMarket)
	off++

	binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(m.Price))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], m.Volume)
	off += 8

	buf[off] = boolByte(m.HasTraderID)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], m.TraderID)
	off += 8

	buf[off] = boolByte(m.HasLifetime)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], m.Lifetime)

	return buf
}

func decodeCancelOrder(body []byte) (*CancelOrderMessage, error) {
	if len(body) < cancelOrderFixedLen {
		return nil, ErrMessageTooShort
	}
	m := &CancelOrderMessage{baseMessage: baseMessage{TypeOf: CancelOrder}}

	copy(m.CorrelationID[:], body[0:16])
	off := 16
	m.Ticker = decodeTicker(body[off : off+TickerLen])
	off += TickerLen
	m.OrderID = binary.BigEndian.Uint64(body[off : off+8])

	return m, nil
}

// Encode serializes a CancelOrderMessage for a client to send.
func (m *CancelOrderMessage) Encode() []byte {
	buf := make([]byte, headerLen+cancelOrderFixedLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))

	off := headerLen
	copy(buf[off:off+16], m.CorrelationID[:])
	off += 16
	copy(buf[off:off+TickerLen], encodeTicker(m.Ticker))
	off += TickerLen
	binary.BigEndian.PutUint64(buf[off:off+8], m.OrderID)

	return buf
}

// Report is the server's reply to a NewOrder or CancelOrder, correlated
// back to the request by CorrelationID. The server sends exactly one report
// per request. For a new order, the ExecutionReport carries the
// engine-assigned order id, the side and price from the request, and the
// order's remaining volume after matching; it does not list individual
// fills or the prices they traded at. For a cancellation it carries only
// the order id.
type Report struct {
	Type          ReportType
	CorrelationID uuid.UUID
	OrderID       uint64
	TraderID      uint64
	IsBid         bool
	Price         float64
	Volume        uint64
	Err           string
}

// Serialize converts the report to wire bytes.
func (r *Report) Serialize() []byte {
	errBytes := []byte(r.Err)
	buf := make([]byte, reportFixedLen+len(errBytes))

	buf[0] = byte(r.Type)
	off := 1
	copy(buf[off:off+16], r.CorrelationID[:])
	off += 16
	binary.BigEndian.PutUint64(buf[off:off+8], r.OrderID)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], r.TraderID)
	off += 8
	buf[off] = boolByte(r.IsBid)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(r.Price))
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], r.Volume)
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(errBytes)))
	off += 4
	copy(buf[off:], errBytes)

	return buf
}

// DeserializeReport parses wire bytes produced by Serialize.
func DeserializeReport(buf []byte) (*Report, error) {
	if len(buf) < reportFixedLen {
		return nil, ErrMessageTooShort
	}
	r := &Report{Type: ReportType(buf[0])}
	off := 1
	copy(r.CorrelationID[:], buf[off:off+16])
	off += 16
	r.OrderID = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	r.TraderID = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	r.IsBid = buf[off] != 0
	off++
	r.Price = math.Float64frombits(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	r.Volume = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	errLen := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	if len(buf) < off+int(errLen) {
		return nil, ErrMessageTooShort
	}
	r.Err = string(buf[off : off+int(errLen)])
	return r, nil
}

// ErrorReportFor builds a Report carrying an error instead of a fill, for
// requests that fail to decode, name an unknown ticker, fail order
// validation, or are rejected by the engine.
func ErrorReportFor(correlationID uuid.UUID, err error) *Report {
	return &Report{
		Type:          ErrorReport,
		CorrelationID: correlationID,
		Err:           fmt.Sprintf("%v", err),
	}
}

func decodeTicker(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func encodeTicker(ticker string) []byte {
	buf := make([]byte, TickerLen)
	copy(buf, ticker)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
