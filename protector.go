package reclaim

import (
	"sync"
	"sync/atomic"

	"github.com/llxisdsh/reclaim/internal/opt"
)

// Protector guards access windows to an externally-published pointer with
// a striped, RCU-style reader count. Unlike Guardian, Protector does not
// own the protected pointer: the writer is responsible for publishing the
// new pointer (with sufficient ordering) before calling Scan, and for
// destroying the old payload only after Scan returns.
//
// Protector must not be copied after first use.
type Protector struct {
	_ noCopy

	// entries[i] is the reader count for stripe i. Any number of
	// goroutines may share a stripe, at a contention cost but no
	// correctness cost.
	entries []opt.CounterStripe_

	// nextSlot hands out stripe ids to each new stripe handle the
	// handles pool creates, round-robin, mod len(entries).
	nextSlot atomic.Uint64

	handles sync.Pool

	cfg protectorConfig
}

type protectorConfig struct {
	scanInterval func(spins *int)
}

// ProtectorOption configures a Protector at construction time.
type ProtectorOption func(*protectorConfig)

// WithScanInterval overrides the backoff Scan uses while waiting for a
// stripe to drain. The default is the package's adaptive spin-then-sleep
// backoff (see delay).
func WithScanInterval(backoff func(spins *int)) ProtectorOption {
	return func(c *protectorConfig) { c.scanInterval = backoff }
}

// NewProtector creates a Protector with m stripes, all zero. m is a
// construction-time bound chosen at or above the expected reader
// concurrency; the reference design uses 64.
func NewProtector(m int, opts ...ProtectorOption) *Protector {
	if m <= 0 {
		panic("reclaim: NewProtector: m must be positive")
	}
	p := &Protector{entries: make([]opt.CounterStripe_, m)}
	p.handles.New = func() any {
		id := int(p.nextSlot.Add(1)-1) % len(p.entries)
		return &stripeHandle{id: id}
	}
	for _, o := range opts {
		o(&p.cfg)
	}
	if p.cfg.scanInterval == nil {
		p.cfg.scanInterval = delay
	}
	return p
}

// stripeHandle carries a stripe id handed out round-robin by
// Protector.handles, a sync.Pool. Go exposes no thread-local storage, so
// this approximates the reference design's "stable per-thread id" via
// sync.Pool's own per-P affinity: a Get immediately followed by a Put
// from the same goroutine is likely, but not guaranteed, to recycle the
// same handle, since goroutines rarely hop P's mid-burst. Correctness
// never depends on that affinity holding: any Guard works correctly no
// matter which stripe its handle names, and stripes are explicitly safe
// to share between unrelated goroutines — only cache-line contention does.
type stripeHandle struct {
	id int
}

// Guard represents an open Protector read window. Release ends the
// window. A Guard must not be copied; call Release exactly once.
type Guard struct {
	p      *Protector
	handle *stripeHandle
}

// Use opens a read window and returns a Guard. Any number of goroutines
// may call Use concurrently. The returned Guard's Release must be called
// exactly once to close the window.
func (p *Protector) Use() Guard {
	h := p.handles.Get().(*stripeHandle)
	atomic.AddUintptr(&p.entries[h.id].C, 1)
	return Guard{p: p, handle: h}
}

// Release ends the read window opened by Use.
func (g Guard) Release() {
	atomic.AddUintptr(&g.p.entries[g.handle.id].C, ^uintptr(0)) // -1
	g.p.handles.Put(g.handle)
}

// Scan blocks until every stripe counter has been observed to reach zero
// at some point during the scan. It does not require all stripes to be
// zero simultaneously, only that each was observed to drain at least
// once. Scan is intended to be called by the writer after it has
// atomically published a new pointer and wishes to reclaim the old one.
func (p *Protector) Scan() {
	var spins int
	for i := range p.entries {
		for atomic.LoadUintptr(&p.entries[i].C) != 0 {
			p.cfg.scanInterval(&spins)
		}
		spins = 0
	}
}

// Close releases Protector's stripe array. The caller must ensure no
// outstanding Guards exist.
func (p *Protector) Close() {
	p.entries = nil
}
