package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-signalsv1/internal/strategy"
)

func testSignal(entry float64) strategy.Signal {
	return strategy.NewSignal(strategy.ActionBuy, entry, time.Unix(1700000000, 0), "Breakout Strategy", "Resistance Broken")
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("gateway")
	out2 := fo.Subscribe("journal")

	input := make(chan strategy.Signal, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- testSignal(1921)

	for name, out := range map[string]<-chan strategy.Signal{"out1": out1, "out2": out2} {
		select {
		case s := <-out:
			if s.Entry != 1921 {
				t.Errorf("%s: expected entry 1921, got %v", name, s.Entry)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for signal", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New(1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	var mu sync.Mutex
	drops := map[string]int{}
	fo.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}

	input := make(chan strategy.Signal)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	// Drain "fast" after every send so only "slow" overflows.
	for i := 0; i < 3; i++ {
		input <- testSignal(float64(1900 + i))
		select {
		case s := <-fast:
			if s.Entry != float64(1900+i) {
				t.Errorf("fast: got entry %v, want %v", s.Entry, 1900+i)
			}
		case <-time.After(time.Second):
			t.Fatalf("fast: timed out on signal %d", i)
		}
	}
	close(input)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if drops["slow"] != 2 {
		t.Errorf("slow drops = %d, want 2", drops["slow"])
	}
	if drops["fast"] != 0 {
		t.Errorf("fast drops = %d, want 0", drops["fast"])
	}
}

func TestFanOut_ClosesOutputsOnCancel(t *testing.T) {
	fo := New(4)
	out := fo.Subscribe("gateway")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fo.Run(ctx, make(chan strategy.Signal))
		close(done)
	}()
	cancel()
	<-done

	if _, ok := <-out; ok {
		t.Fatal("expected output channel to be closed")
	}

	stats := fo.ChannelStats()
	if len(stats) != 1 || stats[0].Name != "gateway" || stats[0].Cap != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFanOut_ReportDepth(t *testing.T) {
	fo := New(4)
	fo.Subscribe("redis")

	input := make(chan strategy.Signal, 2)
	input <- testSignal(1921)
	input <- testSignal(1922)
	close(input)
	fo.Run(context.Background(), input)

	var mu sync.Mutex
	var seen []ChannelStat
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fo.ReportDepth(ctx, 10*time.Millisecond, func(st ChannelStat) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		})
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("no depth reports")
	}
	if st := seen[0]; st.Name != "redis" || st.Len != 2 || st.Cap != 4 {
		t.Errorf("depth report = %+v, want redis 2/4", st)
	}
}
