package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	if got.Before(before) {
		t.Errorf("Now() = %v, before %v", got, before)
	}
	if c.Since(before) < 0 {
		t.Error("Since() returned a negative duration")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	tk := RealClock{}.NewTicker(5 * time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClock_SetAndSince(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Set(start.Add(time.Minute))
	if got := c.Since(start); got != time.Minute {
		t.Errorf("Since() = %v, want 1m", got)
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tk := c.NewTicker(100 * time.Millisecond)

	c.Advance(50 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case got := <-tk.C():
		if want := start.Add(100 * time.Millisecond); !got.Equal(want) {
			t.Errorf("tick at %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestMockTicker_Stop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(time.Millisecond)
	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(time.Hour).(*MockTicker)
	tk.Trigger(time.Unix(5, 0))
	tk.Trigger(time.Unix(6, 0)) // dropped, one tick pending
	if got := <-tk.C(); !got.Equal(time.Unix(5, 0)) {
		t.Errorf("tick = %v, want %v", got, time.Unix(5, 0))
	}
}

func TestMockClock_Tickers(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	if c.Tickers() != 0 {
		t.Fatalf("Tickers() = %d, want 0", c.Tickers())
	}
	c.NewTicker(time.Second)
	c.NewTicker(time.Minute)
	if c.Tickers() != 2 {
		t.Errorf("Tickers() = %d, want 2", c.Tickers())
	}
}
