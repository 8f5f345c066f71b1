package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock-contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	donationAmount = 1
	baseURL        = "http://localhost:8080"
	creatorID      = "perf-creator"
)

func main() {
	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	// Setup: initialize the ledger, create a campaign, fund the donors.
	// Each setup call is retried with exponential backoff so the client
	// can start before the server finishes booting.
	campaignID, err := setup(httpClient, workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Println("donation ledger load test")
	fmt.Println("==========================================")
	fmt.Printf("campaign : %s\n", campaignID)
	fmt.Printf("rps      : %d\n", rps)
	fmt.Printf("duration : %v\n", duration)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	start := time.Now()
	for i := 0; i < workers; i++ {
		donor := fmt.Sprintf("perf-donor-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled -> exit
					return
				}
				doDonate(httpClient, campaignID, donor, &result, latencyChan)
			}
		}()
	}

	wg.Wait()
	close(latencyChan)
	printResults(&result, time.Since(start))
}

func setup(client *http.Client, donors int) (string, error) {
	ctx := context.Background()

	// Initialize may already have run; a conflict is fine.
	_, err := retryPost(ctx, client, "/v1/initialize", creatorID, nil, http.StatusConflict)
	if err != nil {
		return "", fmt.Errorf("initialize: %w", err)
	}

	body, err := retryPost(ctx, client, "/v1/campaigns", creatorID, map[string]any{
		"title":       fmt.Sprintf("load-%d", time.Now().UnixNano()),
		"description": "load test campaign",
		"goal_amount": int64(1_000_000_000_000),
		"duration":    int64(3600),
	})
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode campaign id: %w", err)
	}

	for i := 0; i < donors; i++ {
		donor := fmt.Sprintf("perf-donor-%d", i)
		if _, err := retryPost(ctx, client, "/v1/faucet", donor, nil); err != nil {
			return "", fmt.Errorf("fund %s: %w", donor, err)
		}
	}

	return created.ID, nil
}

// retryPost POSTs with exponential backoff until a 2xx (or an expected
// extra status) is returned.
func retryPost(ctx context.Context, client *http.Client, path, caller string, payload any, acceptable ...int) ([]byte, error) {
	operation := func() ([]byte, error) {
		var body []byte
		if payload != nil {
			var err error
			body, err = json.Marshal(payload)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Caller-Id", caller)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out bytes.Buffer
		if _, err := out.ReadFrom(resp.Body); err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return out.Bytes(), nil
		}
		for _, code := range acceptable {
			if resp.StatusCode == code {
				return out.Bytes(), nil
			}
		}
		return nil, fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, out.String())
	}
	return backoff.Retry(ctx, operation, backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func doDonate(client *http.Client, campaignID, donor string, result *PerfResult, latencies chan<- time.Duration) {
	payload := []byte(fmt.Sprintf(`{"amount":%d}`, donationAmount))
	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/campaigns/"+campaignID+"/donations", bytes.NewReader(payload))
	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Id", donor)

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)

	atomic.AddInt64(&result.TotalRequests, 1)
	atomic.AddInt64(&result.LatencySum, int64(elapsed))

	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		atomic.AddInt64(&result.SuccessCount, 1)
	} else {
		atomic.AddInt64(&result.ErrorCount, 1)
	}

	select {
	case latencies <- elapsed:
	default: // sampler full, drop
	}
}

// trackP95 keeps a bounded reservoir of recent latencies and publishes
// the 95th percentile into the result.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const reservoirSize = 10000
	reservoir := make([]time.Duration, 0, reservoirSize)

	for l := range latencies {
		if len(reservoir) < reservoirSize {
			reservoir = append(reservoir, l)
		} else {
			copy(reservoir, reservoir[1:])
			reservoir[len(reservoir)-1] = l
		}

		if len(reservoir) >= 20 {
			sorted := append([]time.Duration(nil), reservoir...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			p95 := sorted[int(float64(len(sorted))*0.95)]
			atomic.StoreInt64(&result.P95Latency, int64(p95))
		}
	}
}

func printResults(result *PerfResult, elapsed time.Duration) {
	total := atomic.LoadInt64(&result.TotalRequests)
	success := atomic.LoadInt64(&result.SuccessCount)
	failed := atomic.LoadInt64(&result.ErrorCount)

	var avg time.Duration
	if total > 0 {
		avg = time.Duration(atomic.LoadInt64(&result.LatencySum) / total)
	}

	fmt.Println("==========================================")
	fmt.Println("results")
	fmt.Println("==========================================")
	fmt.Printf("elapsed   : %v\n", elapsed)
	fmt.Printf("requests  : %d\n", total)
	fmt.Printf("success   : %d\n", success)
	fmt.Printf("failed    : %d\n", failed)
	fmt.Printf("avg       : %v\n", avg)
	fmt.Printf("p95       : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))
	if elapsed > 0 {
		fmt.Printf("throughput: %.1f req/s\n", float64(total)/elapsed.Seconds())
	}
}
