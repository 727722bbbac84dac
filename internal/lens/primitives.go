package lens

// MapKey focuses a named key of a map-structured payload. Get fails with
// FocusMissing if the key is absent; Put always succeeds, inserting or
// overwriting the key in a shallow copy of the map.
func MapKey[V any](key string) Lens[map[string]V, V] {
	return New(
		func(m map[string]V) (V, error) {
			v, ok := m[key]
			if !ok {
				var zero V
				return zero, focusMissing("lens.MapKey[" + key + "]")
			}
			return v, nil
		},
		func(m map[string]V, v V) (map[string]V, error) {
			out := make(map[string]V, len(m)+1)
			for k, existing := range m {
				out[k] = existing
			}
			out[key] = v
			return out, nil
		},
	)
}

// SliceIndex focuses the element at index i of a sequence-structured
// payload. Get and Put both fail with FocusMissing if i is out of range;
// Put returns a new slice, leaving the source untouched.
func SliceIndex[V any](i int) Lens[[]V, V] {
	return New(
		func(s []V) (V, error) {
			if i < 0 || i >= len(s) {
				var zero V
				return zero, focusMissing("lens.SliceIndex")
			}
			return s[i], nil
		},
		func(s []V, v V) ([]V, error) {
			if i < 0 || i >= len(s) {
				return nil, focusMissing("lens.SliceIndex")
			}
			out := make([]V, len(s))
			copy(out, s)
			out[i] = v
			return out, nil
		},
	)
}

// Field builds a lens over a named field of a struct type S, given a
// getter and a copy-on-write setter supplied by the caller. Go has no
// reflective field-path literal, so callers provide the field accessors
// directly; this keeps lens construction static, matching the declared-
// at-construction failure-set contract.
func Field[S, A any](get func(S) A, set func(S, A) S) Lens[S, A] {
	return New(
		func(s S) (A, error) { return get(s), nil },
		func(s S, a A) (S, error) { return set(s, a), nil },
	)
}
