package reclaim

import (
	"github.com/llxisdsh/pb"
)

// Registry is a named collection of Guardian domains sharing one
// construction policy and one maintenance freeze/generation clock.
// Each name lazily gets its own *Guardian[T], built with the options given
// to NewRegistry, the first time it is asked for.
//
// Registry must not be copied after first use.
type Registry[T any] struct {
	_ noCopy

	domains pb.MapOf[string, *Guardian[T]]
	once    OnceGroup[string, *Guardian[T]]

	readers int
	opts    []GuardianOption

	// gate pauses Exchange callers during a Freeze/Unfreeze window. Gate's
	// zero value starts Closed, so NewRegistry opens it explicitly.
	gate Gate

	// generation bumps once per completed Freeze/Unfreeze cycle so a
	// caller can wait for "at least the maintenance pass that started at
	// time T" via AwaitGeneration.
	generation Epoch
}

// NewRegistry creates an empty Registry. readers is passed to every
// Guardian domain it creates as the reader-count bound (see NewGuardian);
// opts are applied to every domain as well.
func NewRegistry[T any](readers int, opts ...GuardianOption) *Registry[T] {
	r := &Registry[T]{readers: readers, opts: opts}
	r.gate.Open()
	return r
}

// GetOrCreate returns the named domain's Guardian, creating it on first
// use. Concurrent callers asking for the same unseen name block on one
// another and receive the same *Guardian[T] rather than racing to build
// duplicates.
func (r *Registry[T]) GetOrCreate(name string) *Guardian[T] {
	if g, ok := r.domains.Load(name); ok {
		return g
	}
	g, _, _ := r.once.Do(name, func() (*Guardian[T], error) {
		if existing, ok := r.domains.Load(name); ok {
			return existing, nil
		}
		created := NewGuardian[T](r.readers, r.opts...)
		r.domains.Store(name, created)
		return created, nil
	})
	return g
}

// Exchange is Guardian[T].Exchange routed through the named domain,
// honoring the registry's freeze gate: it blocks for the duration of any
// in-progress Freeze.
func (r *Registry[T]) Exchange(name string, replacement *T) {
	r.gate.Wait()
	r.GetOrCreate(name).Exchange(replacement)
}

// Freeze closes the gate, pausing every future call to Exchange across
// every domain until Unfreeze. It returns the generation number that
// Unfreeze will complete; pair with AwaitGeneration to let an unrelated
// goroutine wait for this specific freeze cycle to finish.
func (r *Registry[T]) Freeze() uint32 {
	r.gate.Close()
	return r.generation.Current() + 1
}

// Unfreeze reopens the gate and advances the generation counter, waking
// any Exchange callers queued since the matching Freeze and any
// AwaitGeneration callers waiting on the generation Freeze returned.
func (r *Registry[T]) Unfreeze() {
	r.generation.Increment()
	r.gate.Open()
}

// Generation returns the number of Freeze/Unfreeze cycles completed so
// far.
func (r *Registry[T]) Generation() uint32 {
	return r.generation.Current()
}

// AwaitGeneration blocks until Generation() is at least target.
func (r *Registry[T]) AwaitGeneration(target uint32) {
	r.generation.WaitAtLeast(target)
}

// Close drains and destroys every domain's final payload. The caller must
// ensure no goroutine is still leasing from any domain.
func (r *Registry[T]) Close() {
	r.domains.Range(func(_ string, g *Guardian[T]) bool {
		g.Close()
		return true
	})
}
