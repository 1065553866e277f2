// cmd/pricesim serves a simulated price for running the signal engine
// without a market feed.
//
//	go run ./cmd/pricesim --addr=:9001 --price=1900
//
// Point the engine at it with FEED_MODE=ws FEED_URL=ws://localhost:9001/ws
// or FEED_MODE=http FEED_URL=http://localhost:9001/price.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"trading-signalsv1/internal/pricesim"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "pricesim",
		Usage: "Random-walk price server for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":9001",
				Usage:   "Listen address",
				Sources: cli.EnvVars("PRICESIM_ADDR"),
			},
			&cli.StringFlag{
				Name:    "instrument",
				Value:   "XAUUSD",
				Sources: cli.EnvVars("INSTRUMENT"),
			},
			&cli.FloatFlag{
				Name:  "price",
				Value: 1900,
				Usage: "Starting price",
			},
			&cli.FloatFlag{
				Name:  "step",
				Value: 0.001,
				Usage: "Max move per tick as a fraction of price",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Value:   time.Second,
				Usage:   "Tick interval",
				Sources: cli.EnvVars("PRICESIM_INTERVAL"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("[pricesim] %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	walker := pricesim.NewWalker(cmd.Float("price"), cmd.Float("step"), time.Now().UnixNano())
	sim := pricesim.NewServer(cmd.String("instrument"), walker)

	stop := make(chan struct{})
	go sim.Run(cmd.Duration("interval"), stop)

	srv := &http.Server{Addr: cmd.String("addr"), Handler: sim.Handler()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[pricesim] %s listening on %s (ws: /ws, poll: /price)", cmd.String("instrument"), srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
