package lens

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duotrack/substrate/internal/types"
)

type address struct {
	City string
	Zip  string
}

type person struct {
	Name    string
	Address address
}

func cityLens() Lens[person, string] {
	return Field(
		func(p person) string { return p.Address.City },
		func(p person, city string) person {
			p.Address.City = city
			return p
		},
	)
}

func TestGetPutLaw(t *testing.T) {
	// view(l, put(l, s, view(l, s))) == view(l, s)
	l := cityLens()
	s := person{Name: "Ada", Address: address{City: "London"}}

	a, err := View(l, s)
	require.NoError(t, err)

	s2, err := Put(l, s, a)
	require.NoError(t, err)

	a2, err := View(l, s2)
	require.NoError(t, err)
	require.Equal(t, a, a2)
}

func TestPutGetLaw(t *testing.T) {
	// get(put(l, s, a)) == a
	l := cityLens()
	s := person{Name: "Ada", Address: address{City: "London"}}

	s2, err := Put(l, s, "Paris")
	require.NoError(t, err)

	got, err := View(l, s2)
	require.NoError(t, err)
	require.Equal(t, "Paris", got)
}

func TestPutPutLaw(t *testing.T) {
	// put(l, put(l, s, a1), a2) == put(l, s, a2)
	l := cityLens()
	s := person{Name: "Ada", Address: address{City: "London"}}

	once, err := Put(l, s, "Paris")
	require.NoError(t, err)
	twice, err := Put(l, once, "Berlin")
	require.NoError(t, err)

	direct, err := Put(l, s, "Berlin")
	require.NoError(t, err)
	require.Equal(t, direct, twice)
}

func TestComposeIsAssociative(t *testing.T) {
	type inner struct{ V int }
	type middle struct{ Inner inner }
	type outer struct{ Middle middle }

	f := Field(func(o outer) middle { return o.Middle }, func(o outer, m middle) outer { o.Middle = m; return o })
	g := Field(func(m middle) inner { return m.Inner }, func(m middle, i inner) middle { m.Inner = i; return m })
	h := Field(func(i inner) int { return i.V }, func(i inner, v int) inner { i.V = v; return i })

	left := Compose(Compose(f, g), h)
	right := Compose(f, Compose(g, h))

	o := outer{Middle: middle{Inner: inner{V: 7}}}

	lv, err := View(left, o)
	require.NoError(t, err)
	rv, err := View(right, o)
	require.NoError(t, err)
	require.Equal(t, lv, rv)

	lo, err := Put(left, o, 42)
	require.NoError(t, err)
	ro, err := Put(right, o, 42)
	require.NoError(t, err)
	require.Equal(t, lo, ro)
}

func TestComposeWithIdentityIsNoOp(t *testing.T) {
	l := cityLens()
	composed := Compose(l, Identity[string]())
	s := person{Name: "Ada", Address: address{City: "London"}}

	a, err := View(composed, s)
	require.NoError(t, err)
	require.Equal(t, "London", a)

	s2, err := Put(composed, s, "Paris")
	require.NoError(t, err)

	direct, err := Put(l, s, "Paris")
	require.NoError(t, err)
	require.Equal(t, direct, s2)
}

func TestOverAppliesFunctionToFocus(t *testing.T) {
	l := cityLens()
	s := person{Name: "Ada", Address: address{City: "london"}}

	s2, err := Over(l, s, func(city string) string {
		if len(city) == 0 {
			return city
		}
		return string(city[0]-32) + city[1:]
	})
	require.NoError(t, err)
	require.Equal(t, "London", s2.Address.City)
}

func TestMapKeyFocusMissing(t *testing.T) {
	l := MapKey[int]("missing")
	_, err := View(l, map[string]int{"present": 1})
	require.True(t, types.IsFocusMissing(err))
}

func TestMapKeyPutShallowCopies(t *testing.T) {
	l := MapKey[int]("a")
	original := map[string]int{"a": 1, "b": 2}

	updated, err := Put(l, original, 99)
	require.NoError(t, err)
	require.Equal(t, 1, original["a"])
	require.Equal(t, 99, updated["a"])
	require.Equal(t, 2, updated["b"])
}

func TestSliceIndexOutOfRange(t *testing.T) {
	l := SliceIndex[string](5)
	_, err := View(l, []string{"a", "b"})
	require.True(t, types.IsFocusMissing(err))

	_, err = Put(l, []string{"a", "b"}, "z")
	require.True(t, types.IsFocusMissing(err))
}

func TestSliceIndexPutDoesNotMutateSource(t *testing.T) {
	l := SliceIndex[string](0)
	original := []string{"a", "b"}

	updated, err := Put(l, original, "z")
	require.NoError(t, err)
	require.Equal(t, "a", original[0])
	require.Equal(t, "z", updated[0])
}
