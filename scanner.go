package reclaim

import "time"

// StartAutoScan launches a background goroutine that calls Scan every
// interval until the returned stop function is called. It returns a
// *Pulse that beats once after every completed Scan, so any number of
// goroutines can await "the next scan cycle" by calling tick.Wait()
// instead of polling.
//
// Every call to stop blocks until the goroutine has acknowledged the stop
// request and exited, via a [Latch] the goroutine opens right before
// returning, so stop never returns while a Scan is mid-flight.
func (p *Protector) StartAutoScan(interval time.Duration) (stop func(), tick *Pulse) {
	tick = &Pulse{}
	var stopped, stoppedAck Latch

	go func() {
		defer stoppedAck.Open()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Scan()
				tick.Beat()
			case <-stopLatchChan(&stopped):
				return
			}
		}
	}()

	return func() {
		stopped.Open()
		stoppedAck.Wait()
	}, tick
}

// StartAutoDrain launches a background goroutine that calls Exchange with
// the given supplier's next value every interval, draining the previous
// payload each time, until the returned stop function is called. It
// returns a *Pulse that beats once after every completed Exchange.
//
// Unlike [Protector.StartAutoScan], Guardian has no standalone "scan
// without publishing" operation, so StartAutoDrain takes a next func that
// both produces the replacement and is free to return the same pointer
// repeatedly if there is nothing new to publish.
func (g *Guardian[T]) StartAutoDrain(interval time.Duration, next func() *T) (stop func(), tick *Pulse) {
	tick = &Pulse{}
	var stopped, stoppedAck Latch

	go func() {
		defer stoppedAck.Open()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Exchange(next())
				tick.Beat()
			case <-stopLatchChan(&stopped):
				return
			}
		}
	}()

	return func() {
		stopped.Open()
		stoppedAck.Wait()
	}, tick
}

// stopLatchChan adapts a Latch's blocking Wait into a channel usable in a
// select, so the auto-scan/auto-drain loops can race a stop request
// against the next tick without a busy poll.
func stopLatchChan(l *Latch) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		l.Wait()
		close(ch)
	}()
	return ch
}
