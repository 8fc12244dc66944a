// Package bpengine implements the bounded-buffer producer/consumer
// variant of the Strip Engine: P producers claim and fetch raw strips
// onto a bounded buffer, C consumers pop, inflate and store them into an
// indexed slot array after an artificial per-item delay meant to exercise
// back-pressure on the producers.
//
// The original lab version ran producers and consumers as separate OS
// processes sharing a semaphore-guarded memory segment. That split is
// pedagogical, not architectural: this package collapses both sides into
// goroutines sharing one buffer, defaulting to a channel-backed
// workqueue.Buffer. The classical three-semaphore discipline
// (workqueue.SemBuffer) is kept available for a caller that wants to see
// it exercised instead.
package bpengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/pngassemble"
	"github.com/ece252labs/imaging/pngchunk"
	"github.com/ece252labs/imaging/workqueue"
)

// maxAttempts bounds how many times in total (the first try included) a
// single strip index is attempted by the producer side before it is
// reported as fatally failed.
const maxAttempts = 4

// rawStrip is one fetched-but-not-yet-decoded strip, passed from a
// producer to a consumer across the bounded buffer.
type rawStrip struct {
	claimedIndex int
	body         []byte
	fragmentSeq  int
	hasFragment  bool
}

// buffer is the subset of workqueue.Buffer/SemBuffer bpengine actually
// needs, letting a caller pick either backend.
type buffer interface {
	Push(ctx context.Context, item rawStrip) error
	Pop(ctx context.Context) (rawStrip, bool)
	// Close signals producers are done; any consumer already blocked on
	// or about to call Pop with nothing left coming should unblock.
	Close()
}

// channelBuffer adapts workqueue.Buffer[rawStrip] to the buffer interface.
type channelBuffer struct{ b *workqueue.Buffer[rawStrip] }

func (c channelBuffer) Push(ctx context.Context, item rawStrip) error { return c.b.Push(ctx, item) }
func (c channelBuffer) Pop(ctx context.Context) (rawStrip, bool)      { return c.b.Pop(ctx) }
func (c channelBuffer) Close()                                       { c.b.Close() }

// semBuffer adapts workqueue.SemBuffer[rawStrip] to the buffer interface.
// It has no Close of its own; the Engine cancels a dedicated consumer
// context instead once producers are done, which unblocks any consumer
// truly out of work to pop (see Engine.Run).
type semBuffer struct {
	b      *workqueue.SemBuffer[rawStrip]
	cancel context.CancelFunc
}

func (s semBuffer) Push(ctx context.Context, item rawStrip) error { return s.b.Push(ctx, item) }
func (s semBuffer) Pop(ctx context.Context) (rawStrip, bool) {
	item, err := s.b.Pop(ctx)
	return item, err == nil
}
func (s semBuffer) Close() { s.cancel() }

// Backend selects the bounded-buffer discipline bpengine uses internally.
type Backend int

const (
	// ChannelBackend uses workqueue.Buffer (the default, idiomatic choice).
	ChannelBackend Backend = iota
	// SemaphoreBackend uses workqueue.SemBuffer, the classical
	// empty/full/mutex semaphore triple, kept for its teaching value.
	SemaphoreBackend
)

// Config describes one BP Engine run.
type Config struct {
	Mirrors       []string
	ImageID       int
	BufferCap     int           // B
	Producers     int           // P
	Consumers     int           // C
	ConsumerDelay time.Duration // X
	StripCount    int
	Backend       Backend
}

// Engine runs one BP Engine pass over a Fetcher.
type Engine struct {
	Fetcher fetcher.Fetcher
	Config  Config
}

// New creates an Engine backed by f.
func New(f fetcher.Fetcher, cfg Config) *Engine {
	if cfg.StripCount == 0 {
		cfg.StripCount = 50
	}
	return &Engine{Fetcher: f, Config: cfg}
}

// Run drives the producer/consumer pipeline to completion and returns the
// assembled PNG bytes.
func (e *Engine) Run(ctx context.Context) ([]byte, error) {
	cfg := e.Config
	if len(cfg.Mirrors) == 0 {
		return nil, fmt.Errorf("bpengine: no mirrors configured")
	}
	if cfg.Producers <= 0 || cfg.Consumers <= 0 || cfg.BufferCap <= 0 {
		return nil, fmt.Errorf("bpengine: producers, consumers and buffer capacity must all be > 0")
	}

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()

	var buf buffer
	switch cfg.Backend {
	case SemaphoreBackend:
		buf = semBuffer{b: workqueue.NewSemBuffer[rawStrip](cfg.BufferCap), cancel: cancelConsumers}
	default:
		buf = channelBuffer{workqueue.NewBuffer[rawStrip](cfg.BufferCap)}
	}

	claim := workqueue.NewClaimCounter(cfg.StripCount)
	retry := workqueue.NewRetryQueue(maxAttempts)
	slots := make([]pngassemble.Strip, cfg.StripCount)

	var (
		widthMu sync.Mutex
		width   uint32
		errMu   sync.Mutex
		fatal   error
		lost    int64 // count of indices that exhausted their retry budget
	)
	recordErr := func(err error) {
		errMu.Lock()
		if fatal == nil {
			fatal = err
		}
		errMu.Unlock()
	}

	// Consumers must be running before producers start pushing: the
	// buffer is genuinely bounded, so once it fills with nobody draining
	// it, Push blocks forever and producerWG.Wait() below would never
	// return.
	var consumed int64
	target := int64(cfg.StripCount)
	var consumerWG sync.WaitGroup
	for c := 0; c < cfg.Consumers; c++ {
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			for {
				if atomic.LoadInt64(&consumed) >= atomic.LoadInt64(&target) {
					return
				}
				raw, ok := buf.Pop(consumerCtx)
				if !ok {
					return
				}
				if cfg.ConsumerDelay > 0 {
					time.Sleep(cfg.ConsumerDelay)
				}
				strip, w32, err := decodeStrip(raw, cfg.StripCount)
				if err != nil {
					recordErr(fmt.Errorf("decode strip %d: %w", raw.claimedIndex, err))
					atomic.AddInt64(&consumed, 1)
					continue
				}
				widthMu.Lock()
				if width == 0 {
					width = w32
				}
				widthMu.Unlock()
				slots[strip.Index] = strip
				atomic.AddInt64(&consumed, 1)
			}
		}()
	}

	var producerWG sync.WaitGroup
	for p := 0; p < cfg.Producers; p++ {
		producerWG.Add(1)
		go func() {
			defer producerWG.Done()
			for {
				idx, ok := claim.Claim()
				if !ok {
					idx, ok = retry.Next()
				}
				if !ok {
					return
				}
				mirror := cfg.Mirrors[idx%len(cfg.Mirrors)]
				target := fmt.Sprintf("%s/image?img=%d&part=%d", mirror, cfg.ImageID, idx)
				result, err := e.Fetcher.Fetch(ctx, target)
				if err != nil {
					if retry.Release(idx) {
						continue
					}
					recordErr(fmt.Errorf("fetch strip %d: %w", idx, err))
					atomic.AddInt64(&lost, 1)
					continue
				}
				item := rawStrip{claimedIndex: idx, body: result.Body, fragmentSeq: result.FragmentSeq, hasFragment: result.HasFragment}
				if pushErr := buf.Push(ctx, item); pushErr != nil {
					recordErr(fmt.Errorf("push strip %d: %w", idx, pushErr))
					atomic.AddInt64(&lost, 1)
					return
				}
			}
		}()
	}

	// Once producers are done, the true consumer target is known (it may
	// be short by however many indices were lost to exhausted retries or
	// a failed push) and the buffer can be closed so idle consumers stop
	// waiting on strips that are never coming.
	go func() {
		producerWG.Wait()
		atomic.StoreInt64(&target, int64(cfg.StripCount)-atomic.LoadInt64(&lost))
		buf.Close()
	}()

	consumerWG.Wait()

	if fatal != nil {
		return nil, fatal
	}
	return pngassemble.Assemble(width, slots)
}

// decodeStrip inflates a fetched raw strip's IDAT payload and resolves
// its true slot from the X-Ece252-Fragment-derived claimed index, since
// the producer side only knows which index it claimed, not which slot
// the server says the strip belongs to.
func decodeStrip(raw rawStrip, stripCount int) (pngassemble.Strip, uint32, error) {
	view, err := pngchunk.Parse(raw.body)
	if err != nil {
		return pngassemble.Strip{}, 0, err
	}
	rows, err := pngassemble.Inflate(view.IDATData())
	if err != nil {
		return pngassemble.Strip{}, 0, err
	}
	slot := raw.claimedIndex
	if raw.hasFragment {
		slot = raw.fragmentSeq
	}
	if slot < 0 || slot >= stripCount {
		return pngassemble.Strip{}, 0, fmt.Errorf("claimed index %d out of range", slot)
	}
	return pngassemble.Strip{Index: slot, Height: view.IHDRHeight(), Rows: rows}, view.IHDRWidth(), nil
}
