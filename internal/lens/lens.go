// Package lens implements the composable focused-access morphisms that
// the coordinator and CLI use to read and write into Datum payloads and,
// via the bridge package, into typed Schema Track rows.
//
// The shape is grounded on the IBM fp-go optics lens API (Get/Set pair,
// generic over the whole and the focus) adapted to this system's
// Get/Put naming and without the Option wrapper: a lens here is partial
// via a declared failure (types.ErrFocusMissing) rather than via an
// Option type, because the failure set is fixed at construction time
// and does not need a monadic wrapper threaded through every call site.
package lens

import (
	"github.com/duotrack/substrate/internal/types"
)

// Lens is a polymorphic focus from a whole S onto a part A.
type Lens[S, A any] struct {
	get func(S) (A, error)
	put func(S, A) (S, error)
}

// New constructs a lens from a get/put pair. Callers are responsible for
// ensuring the three lens laws hold; New does not verify them.
func New[S, A any](get func(S) (A, error), put func(S, A) (S, error)) Lens[S, A] {
	return Lens[S, A]{get: get, put: put}
}

// View reads the focused part from source.
func View[S, A any](l Lens[S, A], source S) (A, error) {
	return l.get(source)
}

// Over applies fn to the focused part of source and rebuilds the whole.
func Over[S, A any](l Lens[S, A], source S, fn func(A) A) (S, error) {
	a, err := l.get(source)
	if err != nil {
		var zero S
		return zero, err
	}
	return l.put(source, fn(a))
}

// Put replaces the focused part of source with a, returning the new
// whole.
func Put[S, A any](l Lens[S, A], source S, a A) (S, error) {
	return l.put(source, a)
}

// Identity is the lens that focuses the whole structure itself.
// compose(l, Identity[A]()) == l, and compose(Identity[S](), l) == l.
func Identity[S any]() Lens[S, S] {
	return New(
		func(s S) (S, error) { return s, nil },
		func(_ S, a S) (S, error) { return a, nil },
	)
}

// Compose returns a lens focusing f then g: get first applies f.get,
// then g.get on the result; put first views through f, applies g.put on
// that intermediate value, then writes the result back through f.put.
// Compose is associative: compose(compose(f,g),h) behaves identically
// to compose(f, compose(g,h)) for any three composable lenses.
func Compose[S, A, B any](f Lens[S, A], g Lens[A, B]) Lens[S, B] {
	return New(
		func(s S) (B, error) {
			a, err := f.get(s)
			if err != nil {
				var zero B
				return zero, err
			}
			return g.get(a)
		},
		func(s S, b B) (S, error) {
			a, err := f.get(s)
			if err != nil {
				var zero S
				return zero, err
			}
			a2, err := g.put(a, b)
			if err != nil {
				var zero S
				return zero, err
			}
			return f.put(s, a2)
		},
	)
}

// focusMissing wraps types.ErrFocusMissing with an operation tag.
func focusMissing(op string) error {
	return types.Wrap(op, types.ErrFocusMissing, nil)
}
