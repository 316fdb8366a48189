package reclaim

import (
	"testing"
	"time"
)

func TestProtector_StartAutoScan(t *testing.T) {
	p := NewProtector(4)
	stop, tick := p.StartAutoScan(5 * time.Millisecond)
	defer stop()

	done := make(chan struct{})
	go func() {
		tick.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto-scan never beat tick after starting")
	}
}

// TestProtector_StartAutoScanStopWaitsForAck checks that stop does not
// return while a Scan triggered by the ticker is blocked on an open
// Guard: stop must wait for the worker goroutine to actually exit, not
// just for the stop signal to be sent.
func TestProtector_StartAutoScanStopWaitsForAck(t *testing.T) {
	p := NewProtector(1)
	g := p.Use()

	stop, tick := p.StartAutoScan(time.Millisecond)

	// Wait for the ticker to fire and Scan to block on g.
	done := make(chan struct{})
	go func() {
		tick.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("tick beat before the open Guard was released")
	case <-time.After(50 * time.Millisecond):
	}

	stopDone := make(chan struct{})
	go func() {
		stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("stop returned while Scan was still blocked on an open Guard")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("stop did not return after the Guard was released")
	}
}

func TestGuardian_StartAutoDrain(t *testing.T) {
	g := NewGuardian[int](1)
	var next int
	stop, tick := g.StartAutoDrain(5*time.Millisecond, func() *int {
		next++
		v := next
		return &v
	})
	defer stop()

	done := make(chan struct{})
	go func() {
		tick.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto-drain never beat tick after starting")
	}

	p := g.Lease(0)
	if p == nil || *p < 1 {
		t.Fatalf("got %v, want a published value >= 1", p)
	}
	g.Unlease(0)
}
