// ratecheck fires paced requests at a running instance and reports when
// the policy limiter starts rejecting, so operators can verify deployed
// limits without guessing.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	var (
		baseURL  = flag.String("url", getenv("MIQ_BASE_URL", "http://localhost:8080"), "base URL of the running API")
		token    = flag.String("token", os.Getenv("MIQ_TOKEN"), "bearer token to probe with (optional)")
		rps      = flag.Float64("rps", 2, "probe rate in requests per second")
		requests = flag.Int("n", 90, "total number of probes to send")
	)
	flag.Parse()

	limiter := rate.NewLimiter(rate.Limit(*rps), 1)
	client := &http.Client{Timeout: 10 * time.Second}
	ctx := context.Background()

	var allowed, limited int
	start := time.Now()
	for i := 0; i < *requests; i++ {
		if err := limiter.Wait(ctx); err != nil {
			log.Fatalf("pacer: %v", err)
		}
		status, retryAfter, err := probe(ctx, client, *baseURL, *token)
		if err != nil {
			log.Fatalf("probe %d: %v", i+1, err)
		}
		switch {
		case status == http.StatusTooManyRequests:
			if limited == 0 {
				fmt.Printf("→ first 429 after %d allowed probes (%.1fs), Retry-After %s\n",
					allowed, time.Since(start).Seconds(), retryAfter)
			}
			limited++
		case status >= 200 && status < 500:
			allowed++
		default:
			log.Fatalf("probe %d: unexpected status %d", i+1, status)
		}
	}

	fmt.Printf("✓ %d probes: %d allowed, %d limited in %.1fs\n",
		*requests, allowed, limited, time.Since(start).Seconds())
	if limited == 0 {
		fmt.Println("no throttling observed, raise -rps or -n to reach the configured limit")
	}
}

func probe(ctx context.Context, client *http.Client, baseURL, token string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return 0, "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
