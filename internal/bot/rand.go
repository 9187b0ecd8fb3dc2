package bot

import (
	"math/rand"
	"sync"
	"time"
)

// lockedRand is a random source shared by concurrent arena workers.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// botRng drives brain tie-breaks and arena seeds. It is time-seeded until
// SeedBotRng pins it.
var botRng lockedRand

// SeedBotRng makes brain choices and arena seeds reproducible.
func SeedBotRng(seed int64) {
	botRng.mu.Lock()
	botRng.r = rand.New(rand.NewSource(seed))
	botRng.mu.Unlock()
}

// ResetBotRng drops a pinned seed; the next draw reseeds from the clock.
func ResetBotRng() {
	botRng.mu.Lock()
	botRng.r = nil
	botRng.mu.Unlock()
}

func (l *lockedRand) source() *rand.Rand {
	if l.r == nil {
		l.r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return l.r
}

func botIntn(n int) int {
	botRng.mu.Lock()
	defer botRng.mu.Unlock()
	return botRng.source().Intn(n)
}

// botInt63 never returns 0, which callers treat as "pick a seed".
func botInt63() int64 {
	botRng.mu.Lock()
	defer botRng.mu.Unlock()
	for {
		if v := botRng.source().Int63(); v != 0 {
			return v
		}
	}
}
