// Command stripfetch retrieves the STRIP_COUNT fragments of one target
// image from a pool of mirror servers and writes the assembled result to
// all.png in the working directory.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ece252labs/imaging/env"
	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/stripengine"
)

func main() {
	logger := log.New(os.Stderr, "stripfetch: ", log.LstdFlags)

	workers := flag.Int("t", env.GetEnvAsInt("WORKER_COUNT", 4), "number of concurrent fetch workers")
	imageID := flag.Int("n", env.GetEnvAsInt("IMAGE_ID", 1), "target image id (1..3)")
	mirrors := flag.String("mirrors", env.GetEnv("MIRRORS", defaultMirrors), "comma-separated mirror base URLs")
	out := flag.String("o", env.GetEnv("OUT_FILE", "all.png"), "output PNG path")
	timeout := flag.Duration("timeout", time.Duration(env.GetEnvAsInt("FETCH_TIMEOUT_SEC", 10))*time.Second, "per-fetch timeout")
	flag.Parse()

	if *workers <= 0 {
		logger.Fatal("-t must be > 0")
	}
	if *imageID < 1 || *imageID > 3 {
		logger.Fatal("-n must be in 1..3")
	}

	f := fetcher.New(fetcher.Options{
		UserAgent: env.GetEnv("USERAGENT", defaultUserAgent),
		Timeout:   *timeout,
	})
	e := stripengine.New(f, stripengine.Config{
		Mirrors: strings.Split(*mirrors, ","),
		ImageID: *imageID,
		Workers: *workers,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*stripengine.DefaultStripCount)
	defer cancel()

	data, err := e.Run(ctx)
	if err != nil {
		logger.Fatalf("strip engine: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Fatalf("writing %s: %v", *out, err)
	}
	logger.Printf("wrote %s (%d bytes)", *out, len(data))
}

const defaultUserAgent = "stripfetch/1.0"
const defaultMirrors = "http://ece252-1.uwaterloo.ca:2520,http://ece252-2.uwaterloo.ca:2520,http://ece252-3.uwaterloo.ca:2520"
