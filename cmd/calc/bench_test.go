package main

import (
	"fmt"
	"testing"
	"time"
)

func TestSuccessLatencies(t *testing.T) {
	results := make(chan benchResult, 6)
	for _, r := range []benchResult{
		{lat: 30 * time.Millisecond},
		{lat: 2 * time.Second, err: fmt.Errorf("deadline exceeded")},
		{lat: 10 * time.Millisecond},
		{lat: 40 * time.Millisecond},
		{lat: 2 * time.Second, err: fmt.Errorf("unavailable")},
		{lat: 20 * time.Millisecond},
	} {
		results <- r
	}
	lats, errs := successLatencies(results, 6)
	if errs != 2 {
		t.Fatalf("errs = %d, want 2", errs)
	}
	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
	}
	if len(lats) != len(want) {
		t.Fatalf("got %d latencies, want %d", len(lats), len(want))
	}
	for i, l := range lats {
		if l != want[i] {
			t.Errorf("lats[%d] = %s, want %s", i, l, want[i])
		}
	}
	// The failed calls' durations must not drag the mean up.
	if m := meanOf(lats); m != 25*time.Millisecond {
		t.Errorf("mean = %s, want 25ms", m)
	}
}

func TestSuccessLatenciesAllFailed(t *testing.T) {
	results := make(chan benchResult, 2)
	results <- benchResult{lat: time.Second, err: fmt.Errorf("unavailable")}
	results <- benchResult{lat: time.Second, err: fmt.Errorf("unavailable")}
	lats, errs := successLatencies(results, 2)
	if len(lats) != 0 || errs != 2 {
		t.Fatalf("got %d latencies, %d errors", len(lats), errs)
	}
}
