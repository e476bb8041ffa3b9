package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion"
)

type benchStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	status    map[int]int
	failures  int
}

func newBenchStats() *benchStats {
	return &benchStats{status: make(map[int]int)}
}

func (s *benchStats) record(d time.Duration, status int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		return
	}
	s.status[status]++
	if status < 300 {
		s.latencies = append(s.latencies, d)
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func (s *benchStats) report(w io.Writer, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.failures
	for _, n := range s.status {
		total += n
	}
	ok := len(s.latencies)
	fmt.Fprintf(w, "requests   %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Fprintf(w, "succeeded  %d\n", ok)
	fmt.Fprintf(w, "failed     %d\n", total-ok)
	if ok > 0 {
		lat := slices.Clone(s.latencies)
		slices.Sort(lat)
		for _, p := range []float64{50, 90, 99} {
			fmt.Fprintf(w, "p%-9.0f %s\n", p, percentile(lat, p))
		}
		fmt.Fprintf(w, "max        %s\n", lat[len(lat)-1])
	}
	for _, code := range slices.Sorted(maps.Keys(s.status)) {
		fmt.Fprintf(w, "http %d   %d\n", code, s.status[code])
	}
}

func newBenchCmd() *cobra.Command {
	var (
		baseURL     string
		concurrency int
		duration    time.Duration
		threshold   int
	)
	cmd := &cobra.Command{
		Use:   "bench <queries.jsonl>",
		Short: "Load-test a tmserver with the sources of a unit file as queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			var queries []string
			err = ingestion.ReadUnits(f, func(_ int, u ingestion.UnitPayload) error {
				queries = append(queries, u.Source)
				return nil
			})
			f.Close()
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("%s holds no units", args[0])
			}

			stats := newBenchStats()
			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()
			client := &http.Client{Timeout: 10 * time.Second}
			start := time.Now()

			g, ctx := errgroup.WithContext(ctx)
			for w := range concurrency {
				g.Go(func() error {
					for i := w; ctx.Err() == nil; i++ {
						body, _ := json.Marshal(map[string]any{"query": queries[i%len(queries)], "threshold": threshold})
						req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/query", bytes.NewReader(body))
						if err != nil {
							return err
						}
						req.Header.Set("Content-Type", "application/json")
						t := time.Now()
						resp, err := client.Do(req)
						if ctx.Err() != nil {
							return nil
						}
						if err != nil {
							stats.record(0, 0, err)
							continue
						}
						io.Copy(io.Discard, resp.Body)
						resp.Body.Close()
						stats.record(time.Since(t), resp.StatusCode, nil)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			stats.report(cmd.OutOrStdout(), time.Since(start))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "http://localhost:8080", "tmserver base URL")
	f.IntVar(&concurrency, "concurrency", 8, "concurrent workers")
	f.DurationVar(&duration, "duration", 30*time.Second, "test duration")
	f.IntVar(&threshold, "threshold", 70, "query threshold")
	return cmd
}
