package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Transfers (including idempotent replays)
	fail400       uint64 // Insufficient funds / validation
	fail409       uint64 // Idempotency conflicts
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 200, "Number of accounts to open for the workload")
}

func main() {
	flag.Parse()

	if accounts < 2 {
		log.Fatalf("need at least 2 accounts, got %d", accounts)
	}
	numbers, err := setupAccounts()
	if err != nil {
		log.Fatalf("opening accounts: %v", err)
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Accounts: %d", workload, concurrency, duration, len(numbers))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, numbers)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// setupAccounts opens the workload's accounts through the API. The
// open endpoint needs no Customer-service lookup, so the benchmark
// runs against the account service alone.
func setupAccounts() ([]string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	numbers := make([]string, 0, accounts)

	for i := 0; i < accounts; i++ {
		payload := map[string]interface{}{
			"customerId":  i + 1,
			"accountType": "Saving",
			"category":    "Individual",
			"balance":     "1000000",
		}
		body, _ := json.Marshal(payload)

		resp, err := client.Post(targetURL+"/api/v1/accounts", "application/json", bytes.NewBuffer(body))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusCreated {
			resp.Body.Close()
			return nil, fmt.Errorf("opening account %d: status %d", i+1, resp.StatusCode)
		}
		var account struct {
			AccountNumber string `json:"accountNumber"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()
		numbers = append(numbers, account.AccountNumber)
	}
	return numbers, nil
}

func worker(wg *sync.WaitGroup, start time.Time, numbers []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := pickPair(numbers)

		key := fmt.Sprintf("bench-%s-%s-%d", from, to, time.Now().UnixNano())

		payload := map[string]interface{}{
			"sourceAccountNumber":      from,
			"destinationAccountNumber": to,
			"amount":                   "1.00",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/accounts/transfer", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickPair(numbers []string) (string, string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return numbers[0], numbers[1]
			}
			return numbers[1], numbers[0]
		}
	}

	a := rand.Intn(len(numbers))
	b := rand.Intn(len(numbers))
	for a == b {
		b = rand.Intn(len(numbers))
	}
	return numbers[a], numbers[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f400 := atomic.LoadUint64(&fail400)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var conflictRate float64
	if total > 0 {
		conflictRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":          workload,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"success_ok":        s200,
		"rejected_invalid":  f400,
		"conflicts":         f409,
		"conflict_rate_pct": conflictRate,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
