package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
	"github.com/mohammed-shakir/tilestats/internal/invalidation"
	"github.com/mohammed-shakir/tilestats/internal/invalidation/kafkapublisher"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv().Invalidation
	dataset := flag.String("dataset", "", "dataset key")
	op := flag.String("op", invalidation.OpInvalidate, "invalidate|drop")
	seq := flag.Uint64("seq", 0, "event sequence (defaults to the event time)")
	brokers := flag.String("brokers", cfg.Brokers, "comma-separated Kafka brokers")
	topic := flag.String("topic", cfg.Topic, "invalidation topic")
	flag.Parse()

	if strings.TrimSpace(*dataset) == "" {
		fmt.Fprintln(os.Stderr, "missing -dataset")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	host, _ := os.Hostname()
	pub, err := kafkapublisher.New(strings.Split(*brokers, ","), *topic, host)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kafka error:", err)
		return 1
	}
	defer func() { _ = pub.Close() }()

	part, off, err := pub.Publish(ctx, invalidation.Event{Op: *op, Dataset: *dataset, Seq: *seq})
	if err != nil {
		fmt.Fprintln(os.Stderr, "publish error:", err)
		return 1
	}
	fmt.Printf("published %s %s to %s partition=%d offset=%d\n", *op, *dataset, *topic, part, off)
	return 0
}
