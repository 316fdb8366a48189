//go:build reclaim_disable_padding

package opt

// CounterStripe_ represents a striped counter to reduce contention.
// Padding is force-disabled via the reclaim_disable_padding build tag.
// Use: go build -tags=reclaim_disable_padding
type CounterStripe_ struct {
	C uintptr // Counter value, accessed atomically
}
