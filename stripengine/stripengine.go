// Package stripengine coordinates W workers fetching the STRIP_COUNT
// fragments of one target image from a small pool of interchangeable
// mirror servers, and hands the assembled result to pngassemble.
//
// Work distribution is lock-free: every worker loops claiming the next
// strip index off a shared atomic counter until it is exhausted, then
// drains whatever the RetryQueue has collected from failed attempts,
// matching the original lab's busy-claim worker loop but with a bounded
// retry instead of the original's claim-then-never-retry bug.
package stripengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/imgerr"
	"github.com/ece252labs/imaging/pngassemble"
	"github.com/ece252labs/imaging/pngchunk"
	"github.com/ece252labs/imaging/workqueue"
)

// DefaultStripCount is STRIP_COUNT for the reference workload.
const DefaultStripCount = 50

// MaxAttempts bounds how many times in total (the first try included) a
// single strip index is attempted before the engine gives up on it as a
// fatal error.
const MaxAttempts = 4

// retryPollInterval is how long an idle worker waits before re-checking
// the retry queue and the outstanding-work counter, mirroring the
// original lab's busy-claim loop without spinning a CPU core.
const retryPollInterval = 5 * time.Millisecond

// Config describes one Strip Engine run.
type Config struct {
	// Mirrors is the ordered pool of interchangeable base URLs (e.g.
	// "http://ece252-1.uwaterloo.ca:2520") strips are distributed across,
	// selected by (claimed_index % len(Mirrors)).
	Mirrors []string
	// ImageID selects which logical image (1..3 in the reference
	// workload) to assemble.
	ImageID int
	// Workers is the number of concurrent worker goroutines (T > 0).
	Workers int
	// StripCount overrides DefaultStripCount, mainly for tests.
	StripCount int
}

// Engine runs one Strip Engine pass over a Fetcher.
type Engine struct {
	Fetcher fetcher.Fetcher
	Config  Config
}

// New creates an Engine backed by f.
func New(f fetcher.Fetcher, cfg Config) *Engine {
	if cfg.StripCount == 0 {
		cfg.StripCount = DefaultStripCount
	}
	return &Engine{Fetcher: f, Config: cfg}
}

// Run fetches every strip of the configured image and returns the bytes
// of the assembled PNG. It returns the first fatal error encountered
// (malformed PNG, inflate failure, or an index that exhausted its retry
// budget).
func (e *Engine) Run(ctx context.Context) ([]byte, error) {
	cfg := e.Config
	if len(cfg.Mirrors) == 0 {
		return nil, fmt.Errorf("stripengine: no mirrors configured")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("stripengine: worker count must be > 0")
	}

	slots := make([]pngassemble.Strip, cfg.StripCount)
	claim := workqueue.NewClaimCounter(cfg.StripCount)
	retry := workqueue.NewRetryQueue(MaxAttempts)
	remaining := int64(cfg.StripCount)

	var (
		widthMu sync.Mutex
		width   uint32
		errMu   sync.Mutex
		fatal   error
	)
	recordErr := func(err error) {
		errMu.Lock()
		if fatal == nil {
			fatal = err
		}
		errMu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for remainingCount(&remaining) > 0 {
				select {
				case <-ctx.Done():
					return
				default:
				}

				idx, ok := claim.Claim()
				if !ok {
					idx, ok = retry.Next()
				}
				if !ok {
					time.Sleep(retryPollInterval)
					continue
				}

				strip, w32, err := e.fetchStrip(ctx, idx, cfg)
				if err != nil {
					if retry.Release(idx) {
						continue
					}
					recordErr(fmt.Errorf("strip %d: %w", idx, err))
					decRemaining(&remaining)
					continue
				}

				widthMu.Lock()
				if width == 0 {
					width = w32
				}
				widthMu.Unlock()

				slots[strip.Index] = strip
				decRemaining(&remaining)
			}
		}(w)
	}
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	return pngassemble.Assemble(width, slots)
}

// fetchStrip claims mirror (idx % len(Mirrors)) + 1, retrieves the strip
// whose X-Ece252-Fragment header gives its true slot, and inflates its
// IDAT payload.
func (e *Engine) fetchStrip(ctx context.Context, idx int, cfg Config) (pngassemble.Strip, uint32, error) {
	mirror := cfg.Mirrors[idx%len(cfg.Mirrors)]
	target := fmt.Sprintf("%s/image?img=%d&part=%d", mirror, cfg.ImageID, idx)

	result, err := e.Fetcher.Fetch(ctx, target)
	if err != nil {
		return pngassemble.Strip{}, 0, err
	}

	view, err := pngchunk.Parse(result.Body)
	if err != nil {
		return pngassemble.Strip{}, 0, err
	}
	rows, err := pngassemble.Inflate(view.IDATData())
	if err != nil {
		return pngassemble.Strip{}, 0, err
	}

	slot := idx
	if result.HasFragment {
		slot = result.FragmentSeq
	}
	if slot < 0 || slot >= cfg.StripCount {
		return pngassemble.Strip{}, 0, imgerr.NewStrip(imgerr.MalformedPNG, slot, fmt.Errorf("fragment sequence out of range"))
	}

	return pngassemble.Strip{Index: slot, Height: view.IHDRHeight(), Rows: rows}, view.IHDRWidth(), nil
}

func decRemaining(n *int64)         { atomic.AddInt64(n, -1) }
func remainingCount(n *int64) int64 { return atomic.LoadInt64(n) }
