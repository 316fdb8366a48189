package reclaim

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestProtector_Basic checks that Use opens a window, Scan blocks while
// it is open, and Scan returns once Release has happened.
func TestProtector_Basic(t *testing.T) {
	p := NewProtector(4)

	g := p.Use()
	scanDone := make(chan struct{})
	go func() {
		p.Scan()
		close(scanDone)
	}()

	select {
	case <-scanDone:
		t.Fatal("Scan returned while a Guard was still open")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()

	select {
	case <-scanDone:
	case <-time.After(time.Second):
		t.Fatal("Scan did not return after Release")
	}
}

// TestProtector_StripeSharing runs many goroutines calling Use and
// Release concurrently, sharing a small number of stripes; afterward
// every stripe must read back to zero and a Scan must complete promptly.
func TestProtector_StripeSharing(t *testing.T) {
	const stripes = 4
	const goroutines = 32
	const iterations = 200

	p := NewProtector(stripes)

	var eg errgroup.Group
	for range goroutines {
		eg.Go(func() error {
			for range iterations {
				g := p.Use()
				g.Release()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		p.Scan()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Scan did not complete once all Guards were released")
	}
}

// TestProtector_NonNegative checks that a stripe's reader count never
// goes negative: Release is always paired with a prior Use on the same
// stripe via the handle it returned.
func TestProtector_NonNegative(t *testing.T) {
	p := NewProtector(8)
	var eg errgroup.Group
	for range 16 {
		eg.Go(func() error {
			for range 100 {
				g := p.Use()
				time.Sleep(time.Microsecond)
				g.Release()
			}
			return nil
		})
	}
	_ = eg.Wait()
	for i := range p.entries {
		if c := atomic.LoadUintptr(&p.entries[i].C); c != 0 {
			t.Fatalf("stripe %d: count = %d, want 0", i, c)
		}
	}
}

// TestProtector_SingleThreadedRoundTrip checks that a single Use/Release
// pair leaves every stripe back at zero.
func TestProtector_SingleThreadedRoundTrip(t *testing.T) {
	p := NewProtector(4)
	g := p.Use()
	g.Release()
	for i := range p.entries {
		if c := atomic.LoadUintptr(&p.entries[i].C); c != 0 {
			t.Fatalf("stripe %d: count = %d, want 0", i, c)
		}
	}
}

func TestProtector_ConstructorPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for m <= 0")
		}
	}()
	NewProtector(0)
}
