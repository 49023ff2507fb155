// Package useragent hands out browser identities for new sessions.
package useragent

import (
	"math/rand"
	"sync"
	"time"
)

// Desktop is the fixed set of desktop browser user agents sessions draw from.
var Desktop = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

// Pool is a read-only set of user agents shared for the life of the process.
// It is safe for concurrent use.
type Pool struct {
	agents []string

	mu   sync.Mutex
	rnd  *rand.Rand
	next int
}

// NewPool creates a pool over agents, falling back to Desktop when empty.
func NewPool(agents ...string) *Pool {
	if len(agents) == 0 {
		agents = Desktop
	}
	return &Pool{
		agents: append([]string(nil), agents...),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick returns a uniformly random agent.
func (p *Pool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rnd.Intn(len(p.agents))]
}

// Next returns agents in round-robin order.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := p.agents[p.next%len(p.agents)]
	p.next++
	return ua
}

// Len returns the number of agents in the pool.
func (p *Pool) Len() int { return len(p.agents) }

// Contains reports whether ua belongs to the pool.
func (p *Pool) Contains(ua string) bool {
	for _, a := range p.agents {
		if a == ua {
			return true
		}
	}
	return false
}
