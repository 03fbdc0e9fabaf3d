package playback

import "sync"

// Leases grants exclusive ownership of remote players by key.
type Leases struct {
	mu     sync.Mutex
	owners map[string]*Lease
}

// Lease is one owner's claim on a player.
type Lease struct {
	key    string
	leases *Leases
	revoke func()
}

// NewLeases builds an empty lease table.
func NewLeases() *Leases {
	return &Leases{owners: make(map[string]*Lease)}
}

// Acquire makes a new owner of key. The previous owner, if any, has its
// revoke callback run before Acquire returns.
func (l *Leases) Acquire(key string, revoke func()) *Lease {
	lease := &Lease{key: key, leases: l, revoke: revoke}
	l.mu.Lock()
	prev := l.owners[key]
	l.owners[key] = lease
	l.mu.Unlock()
	if prev != nil && prev.revoke != nil {
		prev.revoke()
	}
	return lease
}

// Holds reports whether lease is the current owner of its key.
func (l *Leases) Holds(lease *Lease) bool {
	if lease == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[lease.key] == lease
}

// Len reports how many players are owned.
func (l *Leases) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owners)
}

// Release gives the player up if this lease still owns it.
func (lease *Lease) Release() {
	if lease == nil {
		return
	}
	l := lease.leases
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[lease.key] == lease {
		delete(l.owners, lease.key)
	}
}

// Active reports whether the lease still owns its player.
func (lease *Lease) Active() bool {
	if lease == nil {
		return false
	}
	return lease.leases.Holds(lease)
}
