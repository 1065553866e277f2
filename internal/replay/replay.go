// Package replay feeds recorded price samples through the engine at a
// configurable speed.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxGap caps the scaled sleep between two samples.
const MaxGap = 5 * time.Second

// Sample is one recorded price observation.
type Sample struct {
	TS    time.Time
	Price float64
}

// SubmitFunc receives each replayed sample. A returned error is counted
// but does not stop the replay.
type SubmitFunc func(price float64, ts time.Time) error

// ReadCSV parses rows of "timestamp,price". The timestamp is either RFC3339
// or Unix milliseconds. A header row whose price column is not numeric is
// skipped. Samples are returned sorted by time.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []Sample
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: read csv: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("replay: line %d: want 2 columns, got %d", line, len(rec))
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("replay: line %d: bad price %q", line, rec[1])
		}
		ts, err := parseTime(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", line, err)
		}
		out = append(out, Sample{TS: ts, Price: price})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

// LoadFile reads a CSV replay file from disk.
func LoadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return ts, nil
}

// Result summarises a finished replay.
type Result struct {
	Submitted int
	Rejected  int
}

// Replayer emits samples with the recorded gaps divided by Speed.
// Speed 0 replays as fast as possible.
type Replayer struct {
	Speed float64

	// OnProgress is called after every sample.
	OnProgress func(done int)

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer at the given speed multiplier.
func New(speed float64) *Replayer {
	return &Replayer{Speed: speed, sleep: sleepCtx}
}

// Run submits every sample in order until done or ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, samples []Sample, submit SubmitFunc) (Result, error) {
	var res Result
	if len(samples) == 0 {
		log.Println("[replay] no samples to replay")
		return res, nil
	}
	log.Printf("[replay] replaying %d samples, speed=%.1fx", len(samples), r.Speed)

	var prev time.Time
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			log.Printf("[replay] cancelled after %d samples", i)
			return res, err
		}

		if d := r.gap(prev, s.TS); d > 0 {
			if err := r.sleep(ctx, d); err != nil {
				return res, err
			}
		}
		prev = s.TS

		if err := submit(s.Price, s.TS); err != nil {
			res.Rejected++
		} else {
			res.Submitted++
		}
		if r.OnProgress != nil {
			r.OnProgress(i + 1)
		}
	}

	log.Printf("[replay] completed: %d submitted, %d rejected", res.Submitted, res.Rejected)
	return res, nil
}

func (r *Replayer) gap(prev, next time.Time) time.Duration {
	if r.Speed <= 0 || prev.IsZero() {
		return 0
	}
	d := next.Sub(prev)
	if d <= 0 {
		return 0
	}
	d = time.Duration(float64(d) / r.Speed)
	if d > MaxGap {
		d = MaxGap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
