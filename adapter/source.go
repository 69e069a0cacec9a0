package adapter

import (
	"math/rand"
	"sync"
)

// Source is the injectable randomness behind the synthetic adapters. A fixed
// seed makes adapter output, and therefore workflow tests, reproducible.
// Safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSource creates a Source from a seed.
func NewSource(seed int64) *Source {
	return &Source{rnd: rand.New(rand.NewSource(seed))}
}

// Float64 returns a value in [min, max).
func (s *Source) Float64(min, max float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rnd.Float64()*(max-min)
}

// Intn returns a value in [min, max].
func (s *Source) Intn(min, max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rnd.Intn(max-min+1)
}

// Pick returns one element of choices.
func (s *Source) Pick(choices []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return choices[s.rnd.Intn(len(choices))]
}
