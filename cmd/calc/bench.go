package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

type benchResult struct {
	lat time.Duration
	err error
}

func benchCmd() *cobra.Command {
	var (
		requests int
		workers  int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure Add call latency over repeated requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			results := make(chan benchResult, requests)
			sem := make(chan struct{}, workers)
			for i := 0; i < requests; i++ {
				go func(i int) {
					sem <- struct{}{}
					defer func() { <-sem }()
					ctx, cancel := callCtx()
					defer cancel()
					start := time.Now()
					_, err := c.Add(ctx, int64(i), int64(i))
					results <- benchResult{lat: time.Since(start), err: err}
				}(i)
			}
			lats, errs := successLatencies(results, requests)
			if len(lats) == 0 {
				return fmt.Errorf("all %d requests failed", requests)
			}

			fmt.Printf("%d requests, %d workers, %d errors\n", requests, workers, errs)
			fmt.Printf("  mean   %8.2f ms\n", msOf(meanOf(lats)))
			fmt.Printf("  median %8.2f ms\n", msOf(lats[len(lats)/2]))
			fmt.Printf("  min    %8.2f ms\n", msOf(lats[0]))
			fmt.Printf("  max    %8.2f ms\n", msOf(lats[len(lats)-1]))
			fmt.Printf("  p95    %8.2f ms\n", msOf(lats[len(lats)*95/100]))
			return nil
		},
	}
	cmd.Flags().IntVarP(&requests, "requests", "n", 100, "number of calls to issue")
	cmd.Flags().IntVarP(&workers, "workers", "w", 10, "calls in flight at once")
	return cmd
}

// successLatencies drains n results and returns the sorted latencies of the
// calls that succeeded, plus the count that failed. Failed calls, timeouts
// included, never enter the percentile math.
func successLatencies(results <-chan benchResult, n int) ([]time.Duration, int) {
	lats := make([]time.Duration, 0, n)
	errs := 0
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			errs++
			continue
		}
		lats = append(lats, r.lat)
	}
	sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
	return lats, errs
}

func msOf(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func meanOf(lats []time.Duration) time.Duration {
	var total time.Duration
	for _, l := range lats {
		total += l
	}
	return total / time.Duration(len(lats))
}
