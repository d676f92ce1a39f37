// Command server runs the matching engine behind the TCP wire protocol,
// along with the optional metrics and market-data stream endpoints.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lobengine/internal/engine"
	"lobengine/internal/server"
)

func main() {
	address := flag.String("address", "0.0.0.0", "address to bind the TCP listener to")
	port := flag.Int("port", 9001, "TCP port for the order entry protocol")
	tickers := flag.String("tickers", "AAPL", "comma-separated list of tradable tickers")
	metricsPort := flag.Int("metrics-port", 9090, "port for the /metrics endpoint, 0 to disable")
	streamPort := flag.Int("stream-port", 9002, "port for the read-only market data websocket, 0 to disable")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	symbols := strings.Split(*tickers, ",")
	eng := engine.New(symbols...)

	var stream *server.StreamHandler
	if *streamPort != 0 {
		stream = server.NewStreamHandler(*streamPort)
	}

	srv := server.New(*address, *port, eng, stream)
	srv.WithMetricsPort(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Strs("tickers", symbols).Int("port", *port).Msg("starting matching engine")
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}
