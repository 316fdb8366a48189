package reclaim

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/reclaim/internal/opt"
)

// Guardian protects a single, atomically-updated pointer slot with a
// hazard-pointer scheme so that a bounded number of concurrent readers can
// dereference the current payload without taking a lock, while a single
// logical writer retires old payloads only once no reader still advertises
// them.
//
// A reader is identified by a caller-supplied id in [0, N), where N is
// fixed at construction via [NewGuardian]. Two concurrent readers must
// never use the same id; ids are otherwise uninterpreted by Guardian (the
// caller typically assigns one id per goroutine, worker slot, or shard).
//
// Guardian must not be copied after first use.
type Guardian[T any] struct {
	_ noCopy

	// slots[version] holds the currently published payload; the other
	// slot holds the previous payload while it is being drained.
	slots [2]atomic.Pointer[T]

	// version selects which element of slots is live: 0 or 1.
	version atomic.Uint32

	// hazards[i] is written only by reader i; it holds the pointer that
	// reader i is about to, or is currently, dereferencing.
	hazards []hazardCell[T]

	// writerLock serializes Exchange and Close (destruction) against
	// each other. FairSemaphore(1) gives FIFO admission under writer
	// contention, unlike sync.Mutex.
	writerLock *FairSemaphore

	cfg guardianConfig

	// handoff is non-nil once StartReclaimer has run; ExchangeAsync uses
	// it to hand a replacement to the reclaimer goroutine. See
	// reclaimer.go.
	handoff *Barter[reclaimMsg[T]]
}

// hazardCell is one reader's hazard entry, padded so that no two readers'
// entries share a cache line and contend on writes to unrelated hazards.
type hazardCell[T any] struct {
	ptr atomic.Pointer[T]
	_   [hazardCellPad]byte
}

// hazardCellPad pads a hazardCell up to opt.CacheLineSize_, mirroring the
// arithmetic opt.CounterStripe_ uses for its own single-word payload.
const hazardCellPad = (cacheLineSize - (unsafe.Sizeof(atomic.Pointer[byte]{}) % cacheLineSize)) % cacheLineSize

const cacheLineSize = opt.CacheLineSize_

type guardianConfig struct {
	drainInterval func(spins *int)
}

// GuardianOption configures a Guardian at construction time.
type GuardianOption func(*guardianConfig)

// WithDrainInterval overrides the backoff used while Exchange and Close
// wait for a retiring payload's hazards to clear. The default is the
// package's adaptive spin-then-sleep backoff (see delay).
func WithDrainInterval(backoff func(spins *int)) GuardianOption {
	return func(c *guardianConfig) { c.drainInterval = backoff }
}

// NewGuardian creates an empty Guardian bound to n concurrent readers
// (ids [0, n)). Both slots start nil, all hazards start nil, version
// starts at 0.
//
// Go has no const-generic array lengths, so unlike the reference design's
// Guardian<T, N>, n is a constructor argument rather than a type
// parameter.
func NewGuardian[T any](n int, opts ...GuardianOption) *Guardian[T] {
	if n <= 0 {
		panic("reclaim: NewGuardian: n must be positive")
	}
	g := &Guardian[T]{
		hazards:    make([]hazardCell[T], n),
		writerLock: NewFairSemaphore(1),
	}
	for _, o := range opts {
		o(&g.cfg)
	}
	if g.cfg.drainInterval == nil {
		g.cfg.drainInterval = delay
	}
	return g
}

// Lease begins a read of the current payload for reader id. It returns a
// pointer (possibly nil) guaranteed not to be destroyed before the
// matching Unlease(id) returns.
//
// Lease panics if id is out of range. Using the same id from two
// goroutines concurrently, or failing to call Unlease exactly once per
// successful Lease, is undefined behavior that Lease cannot detect.
func (g *Guardian[T]) Lease(id int) *T {
	g.checkID(id)
	cell := &g.hazards[id]
	for {
		v := g.version.Load()
		p := g.slots[v].Load()
		cell.ptr.Store(p)
		if g.version.Load() == v && g.slots[v].Load() == p {
			return p
		}
		// version flipped, or p is no longer in slots[v] (two Exchanges
		// can flip version back to v while this reader is between its
		// loads), while we were publishing our hazard; retract and retry
		// so we never return a pointer the writer has already drained.
		cell.ptr.Store(nil)
	}
}

// Unlease ends the read started by the matching Lease(id). It must be
// called exactly once per successful Lease on the same id.
func (g *Guardian[T]) Unlease(id int) {
	g.checkID(id)
	g.hazards[id].ptr.Store(nil)
}

// Exchange atomically replaces the published payload with replacement
// (possibly nil), taking ownership of it. It blocks until the old payload
// can be safely destroyed, then returns after the old payload has been
// dropped. Exchange is serialized against other Exchange and Close calls
// by writerLock.
func (g *Guardian[T]) Exchange(replacement *T) {
	g.writerLock.Acquire(1)
	defer g.writerLock.Release(1)

	v := g.version.Load()
	next := 1 - v
	g.slots[next].Store(replacement)
	g.version.Store(next) // publication point
	old := g.slots[v].Load()
	g.drain(old)
	g.slots[v].Store(nil)
}

// Close drains any in-flight lease of the final payload and destroys it.
// The caller must not have any reader concurrently calling Lease/Unlease
// on a fresh id after Close begins; an in-flight lease started before
// Close is drained normally.
func (g *Guardian[T]) Close() {
	g.writerLock.Acquire(1)
	defer g.writerLock.Release(1)

	v := g.version.Load()
	final := g.slots[v].Load()
	g.slots[v].Store(nil)
	g.drain(final)
}

// drain blocks while any hazard still advertises old.
func (g *Guardian[T]) drain(old *T) {
	if old == nil {
		return
	}
	var spins int
	for g.hazardMatches(old) {
		g.cfg.drainInterval(&spins)
	}
}

func (g *Guardian[T]) hazardMatches(p *T) bool {
	for i := range g.hazards {
		if g.hazards[i].ptr.Load() == p {
			return true
		}
	}
	return false
}

func (g *Guardian[T]) checkID(id int) {
	if id < 0 || id >= len(g.hazards) {
		panic("reclaim: Guardian: id out of range")
	}
}
