// Package crawlengine implements the crawl: T workers pop URLs off a
// shared LIFO frontier, fetch each one, extract outbound links from
// HTML pages and collect canonical PNG URLs, until either the PNG target
// count is reached or the frontier drains with every worker idle.
package crawlengine

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ece252labs/imaging/crawlrules"
	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/pngchunk"
	"github.com/ece252labs/imaging/visited"
	"github.com/ece252labs/imaging/workqueue"
)

// defaultPolitenessDelay is the fixed delay CrawlingRules widens/narrows
// against robots.txt and the last response time.
const defaultPolitenessDelay = 500 * time.Millisecond

// Config describes one crawl run.
type Config struct {
	Seed      string
	Workers   int // T > 0
	PNGTarget int // M > 0
	UserAgent string
	// PolitenessDelay overrides defaultPolitenessDelay.
	PolitenessDelay time.Duration
	Parser          fetcher.Parser
}

// Engine runs one crawl over a Fetcher.
type Engine struct {
	Fetcher fetcher.Fetcher
	Config  Config
}

// New creates an Engine backed by f.
func New(f fetcher.Fetcher, cfg Config) *Engine {
	if cfg.PolitenessDelay == 0 {
		cfg.PolitenessDelay = defaultPolitenessDelay
	}
	return &Engine{Fetcher: f, Config: cfg}
}

// Run crawls starting at the seed URL and returns up to PNGTarget
// canonical PNG URLs, in discovery-completion order.
func (e *Engine) Run(ctx context.Context) ([]string, error) {
	cfg := e.Config
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("crawlengine: worker count must be > 0")
	}
	if cfg.PNGTarget <= 0 {
		return nil, fmt.Errorf("crawlengine: png target must be > 0")
	}
	seed, err := url.Parse(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("crawlengine: invalid seed url: %w", err)
	}
	if seed.Scheme == "" {
		seed.Scheme = "https"
	}

	v := visited.New()
	rules := crawlrules.New(seed, v, cfg.PolitenessDelay)
	rules.GetRobotsTxtGroup(ctx, e.Fetcher, cfg.UserAgent, seed)

	frontier := workqueue.NewFrontier(cfg.Workers)
	if rules.Allowed(seed) {
		frontier.Push(seed.String())
	}

	var (
		resultMu sync.Mutex
		results  []string
		pngCount int64
	)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if atomic.LoadInt64(&pngCount) >= int64(cfg.PNGTarget) {
					frontier.Done()
					return
				}
				raw, ok := frontier.PopOrStop(func(idleIfWaiting, workers int) bool {
					return idleIfWaiting >= workers
				})
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					frontier.Done()
					return
				default:
				}

				link, err := url.Parse(raw)
				if err != nil {
					continue
				}

				start := time.Now()
				result, err := e.Fetcher.Fetch(ctx, raw)
				rules.UpdateLastDelay(time.Since(start))
				if err != nil {
					continue
				}

				switch {
				case result.IsHTML():
					e.handleHTML(link, result, rules, frontier)
				case result.IsPNG():
					if handlePNG(result, link, &resultMu, &results, &pngCount, int64(cfg.PNGTarget)) {
						frontier.Done()
						return
					}
				}

				time.Sleep(rules.CrawlDelay())
			}
		}()
	}
	wg.Wait()

	resultMu.Lock()
	defer resultMu.Unlock()
	if len(results) > cfg.PNGTarget {
		results = results[:cfg.PNGTarget]
	}
	return results, nil
}

// handleHTML extracts outbound links from an HTML response and pushes
// every newly-allowed one onto the frontier.
func (e *Engine) handleHTML(base *url.URL, result fetcher.Result, rules *crawlrules.Rules, frontier *workqueue.Frontier) {
	if e.Config.Parser == nil {
		return
	}
	links, err := e.Config.Parser.Parse(fetcher.BaseURL(result.EffectiveURL), bytes.NewReader(result.Body))
	if err != nil {
		return
	}
	for _, link := range links {
		if rules.Allowed(link) {
			frontier.Push(link.String())
		}
	}
}

// handlePNG verifies the PNG signature, appends the canonical URL to the
// shared result list under resultMu, and reports whether the PNG target
// has now been reached.
func handlePNG(result fetcher.Result, link *url.URL, resultMu *sync.Mutex, results *[]string, pngCount *int64, target int64) bool {
	if len(result.Body) < len(pngchunk.Signature) || !bytes.Equal(result.Body[:len(pngchunk.Signature)], pngchunk.Signature[:]) {
		return false
	}
	resultMu.Lock()
	*results = append(*results, link.String())
	resultMu.Unlock()
	return atomic.AddInt64(pngCount, 1) >= target
}
