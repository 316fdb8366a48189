package reclaim

// ExchangeAsync hands replacement to a background reclaimer goroutine
// started by StartReclaimer and returns as soon as that goroutine has
// taken it, without waiting for the drain of this Exchange the way
// Exchange does. If the reclaimer is still running a previous Exchange,
// ExchangeAsync waits until it is back at the handoff.
//
// ExchangeAsync panics if no reclaimer goroutine is running (see
// StartReclaimer).
func (g *Guardian[T]) ExchangeAsync(replacement *T) {
	if g.handoff == nil {
		panic("reclaim: ExchangeAsync: no reclaimer running, call StartReclaimer first")
	}
	g.handoff.Exchange(reclaimMsg[T]{payload: replacement})
}

// StartReclaimer launches a background goroutine that performs every
// Exchange this Guardian receives through ExchangeAsync, and returns a
// stop function. The caller must call stop, and must not call
// ExchangeAsync again afterward; any already-published ExchangeAsync call
// in flight is allowed to complete first.
//
// The handoff between the calling goroutine and the reclaimer goroutine
// is a [Barter] rendezvous: ExchangeAsync blocks only long enough to swap
// its replacement pointer for an acknowledgement, not for the full drain.
func (g *Guardian[T]) StartReclaimer() (stop func()) {
	g.handoff = NewBarter[reclaimMsg[T]]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg := g.handoff.Exchange(reclaimMsg[T]{})
			if msg.stop {
				return
			}
			g.Exchange(msg.payload)
		}
	}()
	return func() {
		g.handoff.Exchange(reclaimMsg[T]{stop: true})
		<-done
	}
}

type reclaimMsg[T any] struct {
	payload *T
	stop    bool
}
