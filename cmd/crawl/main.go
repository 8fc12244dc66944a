// Command crawl explores an HTML link graph starting from a seed URL, collecting up to a target count of PNG URLs, optionally
// writing them one per line to an output file.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ece252labs/imaging/crawlengine"
	"github.com/ece252labs/imaging/env"
	"github.com/ece252labs/imaging/fetcher"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; ece252crawler/1.0; +https://uwaterloo.ca)"

func main() {
	logger := log.New(os.Stderr, "crawl: ", log.LstdFlags)

	workers := flag.Int("t", env.GetEnvAsInt("WORKER_COUNT", 8), "number of concurrent crawl workers")
	pngTarget := flag.Int("m", env.GetEnvAsInt("PNG_TARGET", 50), "number of PNG URLs to collect before stopping")
	outPath := flag.String("v", env.GetEnv("OUT_FILE", ""), "optional output file for collected PNG URLs")
	timeout := flag.Duration("timeout", time.Duration(env.GetEnvAsInt("CRAWL_TIMEOUT_SEC", 60))*time.Second, "overall crawl timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		logger.Fatalf("usage: crawl [flags] <seed_url>")
	}
	seed := args[0]

	f := fetcher.New(fetcher.Options{UserAgent: env.GetEnv("USERAGENT", defaultUserAgent)})
	e := crawlengine.New(f, crawlengine.Config{
		Seed:      seed,
		Workers:   *workers,
		PNGTarget: *pngTarget,
		UserAgent: env.GetEnv("USERAGENT", defaultUserAgent),
		Parser:    fetcher.NewGoqueryParser(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results, err := e.Run(ctx)
	if err != nil {
		logger.Fatalf("crawl engine: %v", err)
	}
	logger.Printf("collected %d PNG urls", len(results))

	if *outPath == "" {
		for _, r := range results {
			os.Stdout.WriteString(r + "\n")
		}
		return
	}
	if err := os.WriteFile(*outPath, []byte(strings.Join(results, "\n")+"\n"), 0o644); err != nil {
		logger.Fatalf("writing %s: %v", *outPath, err)
	}
}
