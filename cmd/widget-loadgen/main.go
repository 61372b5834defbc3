package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/tilestats/internal/tile"
)

type Config struct {
	BaseURL         string
	Dataset         string
	Methods         string
	Column          string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	ViewportCount   int
	Center          string
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8090", "Widget worker base URL")
	flag.StringVar(&cfg.Dataset, "dataset", "demo", "Dataset key (must be initialized)")
	flag.StringVar(&cfg.Methods, "methods", "formula,histogram,range", "Comma-separated method mix")
	flag.StringVar(&cfg.Column, "column", "pop", "Numeric column used by the calls")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.ViewportCount, "viewports", 128, "Distinct viewports in pool")
	flag.StringVar(&cfg.Center, "center", "18.0686,59.3293", "Center lon,lat of the hot viewports")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/widgets", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Parse()
	return cfg
}

// makeViewports builds a pool whose first quarter clusters around center
// ("hot") while the rest is spread over a wider area.
func makeViewports(count int, center [2]float64, r *rand.Rand) []tile.BBox {
	out := make([]tile.BBox, 0, count)
	hot := max(1, count/4)
	for range hot {
		dx, dy := (r.Float64()-0.5)*0.2, (r.Float64()-0.5)*0.2
		w, h := 0.12+r.Float64()*0.08, 0.12+r.Float64()*0.08
		lon, lat := center[0]+dx, center[1]+dy
		out = append(out, tile.BBox{West: lon - w/2, South: lat - h/2, East: lon + w/2, North: lat + h/2})
	}
	for len(out) < count {
		lon := center[0] + (r.Float64()-0.5)*10
		lat := center[1] + (r.Float64()-0.5)*10
		w, h := 0.2*r.Float64()+0.05, 0.2*r.Float64()+0.05
		out = append(out, tile.BBox{West: lon - w/2, South: lat - h/2, East: lon + w/2, North: lat + h/2})
	}
	return out
}

// callParams returns the params body for one method over a viewport.
func callParams(method, column string, vp tile.BBox) ([]byte, error) {
	p := map[string]any{"viewport": vp}
	switch method {
	case "formula":
		p["column"], p["operation"] = column, "sum"
	case "histogram":
		p["column"], p["operation"], p["ticks"] = column, "count", []float64{10, 100, 1000}
	case "range":
		p["column"] = column
	case "groupBy":
		p["keysColumn"], p["column"], p["operation"] = column, column, "count"
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
	return json.Marshal(p)
}

func parseCenter(s string) ([2]float64, error) {
	var c [2]float64
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%g,%g", &c[0], &c[1]); err != nil {
		return c, fmt.Errorf("parse center %q: %w", s, err)
	}
	return c, nil
}

// one sample per request
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	OK        bool
	ErrorMsg  string
	Method    string
	Viewport  int
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	Methods       []string  `json:"methods"`
	Viewports     int       `json:"viewports"`
	Dataset       string    `json:"dataset"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	center, err := parseCenter(cfg.Center)
	if err != nil {
		log.Fatal(err)
	}
	var methods []string
	for m := range strings.SplitSeq(cfg.Methods, ",") {
		if m = strings.TrimSpace(m); m != "" {
			if _, err := callParams(m, cfg.Column, tile.BBox{}); err != nil {
				log.Fatal(err)
			}
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		log.Fatalf("no methods given")
	}

	seed := time.Now().UnixNano()
	viewports := makeViewports(cfg.ViewportCount, center, rand.New(rand.NewSource(seed)))
	imax := uint64(len(viewports)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        1024,
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go collect(csv.NewWriter(csvFile), samplesChan, resultsChan)

	startTime := time.Now()
	log.Printf("widget loadgen start target=%s dataset=%s methods=%v dur=%s conc=%d viewports=%d",
		cfg.BaseURL, cfg.Dataset, methods, cfg.Duration, cfg.Concurrency, len(viewports))

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				idx := int(zipf.Uint64())
				method := methods[r.Intn(len(methods))]
				s := doCall(ctx, httpClient, cfg, method, idx, viewports[idx])
				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		Methods:       methods,
		Viewports:     len(viewports),
		Dataset:       cfg.Dataset,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, runSummary.ThroughputRPS, runSummary.P50Ms, runSummary.P95Ms, runSummary.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func doCall(ctx context.Context, hc *http.Client, cfg Config, method string, idx int, vp tile.BBox) sample {
	s := sample{Timestamp: time.Now(), Method: method, Viewport: idx}
	body, err := callParams(method, cfg.Column, vp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	url := fmt.Sprintf("%s/v1/datasets/%s/calls/%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Dataset, method)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	s.Latency = time.Since(s.Timestamp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	defer func() { _ = resp.Body.Close() }()
	s.Status = resp.StatusCode

	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
		return s
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	s.OK, s.ErrorMsg = out.OK, out.Error
	return s
}

func collect(w *csv.Writer, samples <-chan sample, results chan<- aggregatedResult) {
	_ = w.Write([]string{"timestamp", "latency_ms", "status", "ok", "error", "method", "viewport_idx"})
	var agg aggregatedResult
	agg.latMs = make([]float64, 0, 1<<16)
	for s := range samples {
		agg.total++
		lat := float64(s.Latency.Microseconds()) / 1000.0
		if s.OK {
			agg.success++
			agg.latMs = append(agg.latMs, lat)
		} else {
			agg.errors++
		}
		_ = w.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%.3f", lat),
			fmt.Sprintf("%d", s.Status),
			fmt.Sprintf("%t", s.OK),
			s.ErrorMsg,
			s.Method,
			fmt.Sprintf("%d", s.Viewport),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("csv flush error: %v", err)
	}
	results <- agg
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
