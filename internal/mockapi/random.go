package mockapi

import (
	"math/rand/v2"
	"sync"
)

type lockedRand struct {
	mu sync.Mutex
	r  Random
}

// Locked wraps r so it can be shared by concurrent handlers.
func Locked(r Random) Random {
	return &lockedRand{r: r}
}

// Seeded returns a concurrency-safe deterministic source for reproducible runs.
func Seeded(seed uint64) Random {
	return Locked(rand.New(rand.NewPCG(seed, seed)))
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
