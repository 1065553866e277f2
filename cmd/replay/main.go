// cmd/replay feeds a CSV of recorded prices through the signal engine and
// prints the signals it emits.
//
// Usage:
//
//	go run ./cmd/replay --file=data/xauusd.csv --speed=0 --sqlite=data/replay.db
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/replay"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
	"trading-signalsv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cmd := &cli.Command{
		Name:  "replay",
		Usage: "Feed recorded prices through the signal engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "CSV of timestamp,price rows",
				Required: true,
			},
			&cli.FloatFlag{
				Name:  "speed",
				Value: 0,
				Usage: "Playback speed multiplier (0=max, 1=realtime, 100=100x)",
			},
			&cli.StringFlag{
				Name:  "instrument",
				Value: "XAUUSD",
				Usage: "Instrument label for journal rows",
			},
			&cli.DurationFlag{
				Name:  "granularity",
				Value: time.Second,
				Usage: "Signal timestamp granularity (0 disables truncation)",
			},
			&cli.StringFlag{
				Name:  "sqlite",
				Usage: "Journal signals to this SQLite file",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print signals as JSON lines",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Hide the progress bar",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("[replay] %v", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	samples, err := replay.LoadFile(cmd.String("file"))
	if err != nil {
		return err
	}
	log.Printf("[replay] loaded %d samples from %s", len(samples), cmd.String("file"))

	var journal *sqlitestore.Journal
	if path := cmd.String("sqlite"); path != "" {
		journal, err = sqlitestore.Open(path, cmd.String("instrument"))
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	lg := logger.Init("replay", logger.ParseLevel("warn"))
	eng := engine.New(
		engine.WithGranularity(cmd.Duration("granularity")),
		engine.WithLogger(lg),
	)

	var (
		mu      sync.Mutex
		signals []strategy.Signal
	)
	eng.OnSignal(func(sig strategy.Signal) {
		mu.Lock()
		signals = append(signals, sig)
		mu.Unlock()
		if journal != nil {
			if err := journal.Record(ctx, sig); err != nil {
				log.Printf("[replay] journal write failed: %v", err)
			}
		}
	})

	r := replay.New(cmd.Float("speed"))
	var bar *progressbar.ProgressBar
	if !cmd.Bool("quiet") && !cmd.Bool("json") {
		bar = progressbar.Default(int64(len(samples)), "replaying")
		r.OnProgress = func(int) { _ = bar.Add(1) }
	}

	start := time.Now()
	res, err := r.Run(ctx, samples, eng.SubmitSampleAt)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		for _, s := range signals {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Println()
	for _, s := range signals {
		fmt.Printf("%s  %-4s @ %.2f  SL %.2f  TP %.2f  %-18s %s\n",
			s.Timestamp.UTC().Format(time.RFC3339), s.Type, s.Entry, s.StopLoss, s.TakeProfit,
			s.StrategyName, s.Reason)
	}
	fmt.Printf("\nsamples=%d rejected=%d signals=%d elapsed=%s\n",
		res.Submitted, res.Rejected, len(signals), time.Since(start).Round(time.Millisecond))
	return nil
}
