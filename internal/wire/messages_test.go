package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderMessage_RoundTrip(t *testing.T) {
	traderID := uint64(7)
	lifetime := uint64(3)

	original := &NewOrderMessage{
		baseMessage:   baseMessage{TypeOf: NewOrder},
		CorrelationID: uuid.New(),
		Ticker:        "AAPL",
		IsBid:         true,
		IsMarket:      false,
		Price:         101.5,
		Volume:        10,
		HasTraderID:   true,
		TraderID:      traderID,
		HasLifetime:   true,
		Lifetime:      lifetime,
	}

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)

	got, ok := decoded.(*NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, original.CorrelationID, got.CorrelationID)
	assert.Equal(t, original.Ticker, got.Ticker)
	assert.Equal(t, original.IsBid, got.IsBid)
	assert.Equal(t, original.Price, got.Price)
	assert.Equal(t, original.Volume, got.Volume)
	assert.True(t, got.HasTraderID)
	assert.Equal(t, traderID, got.TraderID)
	assert.True(t, got.HasLifetime)
	assert.Equal(t, lifetime, got.Lifetime)
}

func TestCancelOrderMessage_RoundTrip(t *testing.T) {
	original := &CancelOrderMessage{
		baseMessage:   baseMessage{TypeOf: CancelOrder},
		CorrelationID: uuid.New(),
		Ticker:        "MSFT",
		OrderID:       42,
	}

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)

	got, ok := decoded.(*CancelOrderMessage)
	require.True(t, ok)
	assert.Equal(t, original.CorrelationID, got.CorrelationID)
	assert.Equal(t, "MSFT", got.Ticker)
	assert.Equal(t, uint64(42), got.OrderID)
}

func TestDecode_RejectsShortMessage(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestDecode_RejectsUnknownType(t *testing.T) {
	buf := make([]byte, headerLen+cancelOrderFixedLen)
	buf[1] = 0xFF
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestReport_SerializeRoundTrip(t *testing.T) {
	original := &Report{
		Type:          ExecutionReport,
		CorrelationID: uuid.New(),
		OrderID:       5,
		TraderID:      101,
		IsBid:         true,
		Price:         100.25,
		Volume:        3,
		Err:           "",
	}

	got, err := DeserializeReport(original.Serialize())
	require.NoError(t, err)
	assert.Equal(t, original.Type, got.Type)
	assert.Equal(t, original.CorrelationID, got.CorrelationID)
	assert.Equal(t, original.OrderID, got.OrderID)
	assert.Equal(t, original.TraderID, got.TraderID)
	assert.Equal(t, original.Price, got.Price)
	assert.Equal(t, original.Volume, got.Volume)
}

func TestReport_SerializeCarriesErrorText(t *testing.T) {
	r := ErrorReportFor(uuid.New(), assert.AnError)
	got, err := DeserializeReport(r.Serialize())
	require.NoError(t, err)
	assert.Equal(t, ErrorReport, got.Type)
	assert.Equal(t, assert.AnError.Error(), got.Err)
}

func TestTickerRoundTrip_FullEightBytes(t *testing.T) {
	encoded := encodeTicker("ABCDEFGH")
	assert.Len(t, encoded, TickerLen)
	assert.Equal(t, "ABCDEFGH", decodeTicker(encoded))
}
