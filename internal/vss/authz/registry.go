package authz

import "sync"

// Registry tracks every live Channel by connection id, grounded on the
// teacher's sdk/forward TunnelServer connMu/conns registry pattern. The
// request processor uses it to invalidate every channel's cached
// concrete-leaf scope after an updateVSSTree, per spec.md §9.
type Registry struct {
	mu       sync.RWMutex
	channels map[uint64]*Channel
}

// NewRegistry builds an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[uint64]*Channel)}
}

// Register adds ch to the registry.
func (r *Registry) Register(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ConnectionID()] = ch
}

// Unregister removes the channel with connectionID from the registry, on
// connection teardown.
func (r *Registry) Unregister(connectionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, connectionID)
}

// Get looks up a channel by connection id.
func (r *Registry) Get(connectionID uint64) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[connectionID]
	return ch, ok
}

// InvalidateAll recomputes every registered channel's cached
// concrete-leaf scope against the given AccessChecker, after a tree
// shape change (updateVSSTree).
func (r *Registry) InvalidateAll(access *AccessChecker) {
	r.mu.RLock()
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	for _, ch := range channels {
		concrete := access.ExpandScopeFromPerms(ch.WildcardScope())
		ch.RebuildExpanded(concrete)
	}
}
