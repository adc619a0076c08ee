package mcp

import (
	"sync"
	"time"
)

// replayGuard remembers (client, nonce) pairs for ttl so a captured signed
// request cannot be sent twice.
type replayGuard struct {
	mu        sync.Mutex
	seen      map[string]int64
	ttl       time.Duration
	lastPrune int64
}

func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = 2 * clockSkew
	}
	return &replayGuard{seen: map[string]int64{}, ttl: ttl}
}

func (g *replayGuard) allow(clientID, nonce string, now time.Time) bool {
	if g == nil || nonce == "" {
		return true
	}
	key := clientID + "|" + nonce
	nowMS := now.UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.seen) > 4096 || nowMS-g.lastPrune > g.ttl.Milliseconds()/2 {
		for k, exp := range g.seen {
			if exp <= nowMS {
				delete(g.seen, k)
			}
		}
		g.lastPrune = nowMS
	}
	if exp, ok := g.seen[key]; ok && exp > nowMS {
		return false
	}
	g.seen[key] = nowMS + g.ttl.Milliseconds()
	return true
}
