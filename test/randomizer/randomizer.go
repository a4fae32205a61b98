package randomizer

import (
	"math/rand"
)

const ALPHABET = "abcdefghijklmnopqrstuvwxyz"

// Randomizer is a seeded source for generating node workloads, so the same
// seed always produces the same measurement files.
type Randomizer struct {
	randGen *rand.Rand
}

func Init(seed int64) Randomizer {
	src := rand.New(rand.NewSource(seed))

	r := Randomizer{
		randGen: src,
	}

	return r
}

func (r *Randomizer) GetIntRange(min int, max int) int {
	return min + int(r.randGen.Intn(max-min))
}

// GetWord returns a lowercase word of the given length.
func (r *Randomizer) GetWord(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = ALPHABET[r.randGen.Intn(len(ALPHABET))]
	}

	return string(b)
}

// Workload returns n distinct measurement values.
func (r *Randomizer) Workload(n int) []string {
	seen := make(map[string]struct{}, n)
	values := make([]string, 0, n)

	for len(values) < n {
		w := r.GetWord(r.GetIntRange(3, 9))
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		values = append(values, w)
	}

	return values
}
