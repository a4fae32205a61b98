package randomizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkloadIsDeterministic(t *testing.T) {
	a := Init(69)
	b := Init(69)

	assert.Equal(t, a.Workload(10), b.Workload(10))
}

func TestWorkloadValuesAreDistinct(t *testing.T) {
	r := Init(1)
	values := r.Workload(50)

	assert.Len(t, values, 50)
	seen := map[string]bool{}
	for _, v := range values {
		assert.False(t, seen[v], v)
		seen[v] = true
		assert.GreaterOrEqual(t, len(v), 3)
		assert.Less(t, len(v), 9)
	}
}

func TestGetIntRange(t *testing.T) {
	r := Init(7)
	for range 100 {
		n := r.GetIntRange(5, 8)
		assert.GreaterOrEqual(t, n, 5)
		assert.Less(t, n, 8)
	}
}
