// Command client is a thin CLI front end for the order entry protocol:
// it places or cancels one order, prints the resulting report, and exits.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lobengine/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matching engine's TCP listener")
	traderFlag := flag.Uint64("trader", 0, "trader id placing the order (0 means anonymous)")
	action := flag.String("action", "place", "action to perform: place, cancel")
	ticker := flag.String("ticker", "AAPL", "ticker symbol, max 8 characters")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit or market")
	price := flag.Float64("price", 100.0, "limit price, ignored for market orders")
	qty := flag.Uint64("qty", 10, "order volume")
	lifetimeFlag := flag.Uint64("lifetime", 0, "order lifetime in ticks, 0 means the engine default")
	id := flag.Uint64("id", 0, "order id to cancel, required when -action=cancel")
	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	isBid := strings.EqualFold(*sideStr, "buy")
	isMarket := strings.EqualFold(*typeStr, "market")

	correlationID := uuid.New()

	switch strings.ToLower(*action) {
	case "place":
		msg := &wire.NewOrderMessage{
			CorrelationID: correlationID,
			Ticker:        *ticker,
			IsBid:         isBid,
			IsMarket:      isMarket,
			Price:         *price,
			Volume:        *qty,
		}
		if *traderFlag != 0 {
			msg.HasTraderID = true
			msg.TraderID = *traderFlag
		}
		if *lifetimeFlag != 0 {
			msg.HasLifetime = true
			msg.Lifetime = *lifetimeFlag
		}
		if _, err := conn.Write(msg.Encode()); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s order: %s qty=%d price=%.2f\n", *typeStr, strings.ToUpper(*sideStr), *ticker, *qty, *price)

	case "cancel":
		if *id == 0 {
			log.Fatal("-id is required for -action=cancel")
		}
		msg := &wire.CancelOrderMessage{
			CorrelationID: correlationID,
			Ticker:        *ticker,
			OrderID:       *id,
		}
		if _, err := conn.Write(msg.Encode()); err != nil {
			log.Fatalf("failed to send cancellation: %v", err)
		}
		fmt.Printf("-> sent cancel for order %d on %s\n", *id, *ticker)

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := make([]byte, 4*1024)
	n, err := conn.Read(reply)
	if err != nil {
		log.Printf("no reply received: %v", err)
		return
	}
	report, err := wire.DeserializeReport(reply[:n])
	if err != nil {
		log.Printf("failed to parse reply: %v", err)
		return
	}
	printReport(report)
}

func printReport(r *wire.Report) {
	if r.Type == wire.ErrorReport {
		fmt.Printf("<- error: %s\n", r.Err)
		return
	}
	side := "SELL"
	if r.IsBid {
		side = "BUY"
	}
	price := decimal.NewFromFloat(r.Price).Round(2)
	fmt.Printf("<- execution: order=%d %s qty=%d price=%s\n", r.OrderID, side, r.Volume, price)
}
