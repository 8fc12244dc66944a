// Command bpfetch is the bounded-buffer producer/consumer variant of
// stripfetch: positional arguments set the buffer capacity, producer and
// consumer counts, an artificial per-item consumer delay, and the target
// image id.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ece252labs/imaging/bpengine"
	"github.com/ece252labs/imaging/env"
	"github.com/ece252labs/imaging/fetcher"
)

const defaultUserAgent = "bpfetch/1.0"
const defaultMirrors = "http://ece252-1.uwaterloo.ca:2530,http://ece252-2.uwaterloo.ca:2530,http://ece252-3.uwaterloo.ca:2530"

func main() {
	logger := log.New(os.Stderr, "bpfetch: ", log.LstdFlags)

	mirrors := flag.String("mirrors", env.GetEnv("MIRRORS", defaultMirrors), "comma-separated mirror base URLs")
	out := flag.String("o", env.GetEnv("OUT_FILE", "all.png"), "output PNG path")
	sem := flag.Bool("sem", false, "use the classical semaphore-triple buffer instead of the channel backend")
	flag.Parse()

	args := flag.Args()
	if len(args) != 5 {
		logger.Fatalf("usage: bpfetch [flags] B P C X N (got %d positional args)", len(args))
	}
	b := mustAtoi(logger, args[0], "B")
	p := mustAtoi(logger, args[1], "P")
	c := mustAtoi(logger, args[2], "C")
	x := mustAtoi(logger, args[3], "X")
	n := mustAtoi(logger, args[4], "N")

	backend := bpengine.ChannelBackend
	if *sem {
		backend = bpengine.SemaphoreBackend
	}

	f := fetcher.New(fetcher.Options{UserAgent: env.GetEnv("USERAGENT", defaultUserAgent)})
	e := bpengine.New(f, bpengine.Config{
		Mirrors:       strings.Split(*mirrors, ","),
		ImageID:       n,
		BufferCap:     b,
		Producers:     p,
		Consumers:     c,
		ConsumerDelay: time.Duration(x) * time.Millisecond,
		Backend:       backend,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	data, err := e.Run(ctx)
	if err != nil {
		logger.Fatalf("bp engine: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Fatalf("writing %s: %v", *out, err)
	}
	logger.Printf("wrote %s (%d bytes)", *out, len(data))
}

func mustAtoi(logger *log.Logger, s, name string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Fatalf("%s must be an integer, got %q", name, s)
	}
	return v
}
