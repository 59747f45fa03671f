package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultGuardTTL is how long a latch entry survives when the interaction
// never reports completion (e.g. the pass died mid-flight).
const DefaultGuardTTL = 2 * time.Minute

type guardKey struct {
	sessionID uuid.UUID
	exchange  string
}

// Guard is a per-process latch keyed by (session, exchange key). It stops
// the UI's re-executed passes from driving a second model call for the
// same logical action before the durable idempotency check would catch it.
//
// Purely an optimization: the process may restart, so correctness always
// rests on the exchange-key check in Bridge.
type Guard struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[guardKey]time.Time // expiry instants
	now     func() time.Time       // test seam
}

// NewGuard creates a latch. ttl <= 0 falls back to DefaultGuardTTL.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &Guard{
		ttl:     ttl,
		entries: make(map[guardKey]time.Time),
		now:     time.Now,
	}
}

// Admit reports whether this pass may proceed with the exchange. The first
// caller for a key wins; subsequent callers are suppressed until Done is
// called or the entry times out.
func (g *Guard) Admit(sessionID uuid.UUID, exchangeKey string) bool {
	k := guardKey{sessionID: sessionID, exchange: exchangeKey}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(now)

	if expiry, held := g.entries[k]; held && now.Before(expiry) {
		return false
	}
	g.entries[k] = now.Add(g.ttl)
	return true
}

// Done releases the latch once the interaction completes. A later rerun
// for the same key is admitted again and stopped by the durable check
// instead, which is exactly the cheap/correct split intended.
func (g *Guard) Done(sessionID uuid.UUID, exchangeKey string) {
	k := guardKey{sessionID: sessionID, exchange: exchangeKey}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, k)
}

// Len returns the number of live latch entries.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	return len(g.entries)
}

func (g *Guard) pruneLocked(now time.Time) {
	for k, expiry := range g.entries {
		if !now.Before(expiry) {
			delete(g.entries, k)
		}
	}
}
