package lockkeeper

import (
	"sync"
	"time"

	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// LockService hands out named advisory locks. Locks are process-local and
// TTL-bounded: a holder that dies is reclaimed when the TTL lapses.
// Correctness does not depend on these locks; the payment store's
// uniqueness constraints do the hard work. Locks exist for throughput and
// clear error messages.
type LockService struct {
	mu    sync.Mutex
	held  map[string]time.Time // key -> expiry
	ttl   time.Duration
	clock timeutil.Clock
}

// NewLockService creates a lock service with the given TTL
func NewLockService(ttl time.Duration, clock timeutil.Clock) *LockService {
	return &LockService{
		held:  make(map[string]time.Time),
		ttl:   ttl,
		clock: clock,
	}
}

func lockKey(resourceKind, resourceID string) string {
	return resourceKind + "/" + resourceID
}

// Acquire takes the lock for (resourceKind, resourceID). Returns false when
// another holder owns it and the TTL has not lapsed.
func (s *LockService) Acquire(resourceKind, resourceID string) bool {
	key := lockKey(resourceKind, resourceID)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if expiry, ok := s.held[key]; ok && expiry.After(now) {
		return false
	}
	s.held[key] = now.Add(s.ttl)
	return true
}

// Release frees the lock regardless of which caller within this process
// acquired it
func (s *LockService) Release(resourceKind, resourceID string) {
	key := lockKey(resourceKind, resourceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key)
}
