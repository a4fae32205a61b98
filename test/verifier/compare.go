package verifier

import (
	"reflect"

	p "github.com/Kevin27954/convergence-sim-test/pkg"
)

// HaveSameElementsBy reports whether every element of a has a match in b and
// every element of b has a match in a. Order and multiplicity are ignored.
func HaveSameElementsBy[T any](a []T, b []T, isSame func(x T, y T) bool) bool {
	return coveredBy(a, b, isSame) && coveredBy(b, a, isSame)
}

func coveredBy[T any](from []T, in []T, isSame func(x T, y T) bool) bool {
	for _, x := range from {
		found := false
		for _, y := range in {
			if isSame(y, x) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// SameValue is the element equality used for owner values.
func SameValue(a any, b any) bool {
	return reflect.DeepEqual(a, b)
}

// SameOwnerValue compares provenance exactly and values as sets.
func SameOwnerValue(a p.OwnerValue, b p.OwnerValue) bool {
	return a.Owner == b.Owner &&
		a.ContainedSimulatedFailure == b.ContainedSimulatedFailure &&
		HaveSameElementsBy(a.Values, b.Values, SameValue)
}

// SameResult compares two snapshots of the shared set. With ignoreFailed,
// entries of owners that simulated a failure are left out on both sides.
func SameResult(result []p.OwnerValue, expected []p.OwnerValue, ignoreFailed bool) bool {
	if ignoreFailed {
		result = withoutFailed(result)
		expected = withoutFailed(expected)
	}

	return HaveSameElementsBy(result, expected, SameOwnerValue)
}

func withoutFailed(values []p.OwnerValue) []p.OwnerValue {
	kept := make([]p.OwnerValue, 0, len(values))
	for _, v := range values {
		if !v.ContainedSimulatedFailure {
			kept = append(kept, v)
		}
	}

	return kept
}
