package service

import (
	"sort"
	"sync"
)

// Member is one connection's entry in a registry group
type Member[P any] struct {
	ConnectionID string
	Payload      P
}

type registryEntry[P any] struct {
	payload P
	seq     uint64
}

// Registry is an in-memory partitioned membership store: group ID to the
// connections in it, each with a payload. The room axis and the layer axis
// each own one instance. It is never shared across processes.
//
// Registry does not enforce one group per connection on its own; the
// services that own an instance leave the old group before joining a new one.
type Registry[P any] struct {
	mu     sync.RWMutex
	groups map[string]map[string]registryEntry[P] // groupID -> connectionID -> entry
	seq    uint64
}

// NewRegistry creates an empty registry
func NewRegistry[P any]() *Registry[P] {
	return &Registry[P]{
		groups: make(map[string]map[string]registryEntry[P]),
	}
}

// Join inserts or overwrites the connection's entry in a group.
// Re-joining the same group updates the payload in place.
func (r *Registry[P]) Join(groupID, connectionID string, payload P) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(groupID, connectionID, payload)
}

// JoinIfUnder joins only if the group holds fewer than limit other members.
// A limit of zero or less means unlimited. The check and the insert happen
// under one lock. Returns false when the group is full.
func (r *Registry[P]) JoinIfUnder(groupID, connectionID string, payload P, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	group := r.groups[groupID]
	if _, already := group[connectionID]; !already && limit > 0 && len(group) >= limit {
		return false
	}
	r.joinLocked(groupID, connectionID, payload)
	return true
}

func (r *Registry[P]) joinLocked(groupID, connectionID string, payload P) {
	group, ok := r.groups[groupID]
	if !ok {
		group = make(map[string]registryEntry[P])
		r.groups[groupID] = group
	}

	entry, exists := group[connectionID]
	if !exists {
		r.seq++
		entry.seq = r.seq
	}
	entry.payload = payload
	group[connectionID] = entry
}

// Leave removes the connection from a group and drops the group once empty.
// Returns true if the connection was a member.
func (r *Registry[P]) Leave(groupID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(groupID, connectionID)
}

func (r *Registry[P]) leaveLocked(groupID, connectionID string) bool {
	group, ok := r.groups[groupID]
	if !ok {
		return false
	}
	if _, ok := group[connectionID]; !ok {
		return false
	}
	delete(group, connectionID)
	if len(group) == 0 {
		delete(r.groups, groupID)
	}
	return true
}

// CurrentGroup scans every group for the connection. Used when the caller's
// cached group is missing.
func (r *Registry[P]) CurrentGroup(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for groupID, group := range r.groups {
		if _, ok := group[connectionID]; ok {
			return groupID, true
		}
	}
	return "", false
}

// GroupsOf returns every group containing the connection, sorted
func (r *Registry[P]) GroupsOf(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var groups []string
	for groupID, group := range r.groups {
		if _, ok := group[connectionID]; ok {
			groups = append(groups, groupID)
		}
	}
	sort.Strings(groups)
	return groups
}

// RemoveEverywhere removes the connection from every group it is in and
// returns those groups. Safe to call when the connection is in no group.
func (r *Registry[P]) RemoveEverywhere(connectionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for groupID := range r.groups {
		if r.leaveLocked(groupID, connectionID) {
			removed = append(removed, groupID)
		}
	}
	sort.Strings(removed)
	return removed
}

// CountOf returns the size of a group, or 0 if it does not exist
func (r *Registry[P]) CountOf(groupID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[groupID])
}

// Get returns the connection's payload in a group
func (r *Registry[P]) Get(groupID, connectionID string) (P, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.groups[groupID][connectionID]
	return entry.payload, ok
}

// Update mutates the connection's payload in place. Returns false if the
// connection is not in the group.
func (r *Registry[P]) Update(groupID, connectionID string, fn func(*P)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return false
	}
	entry, ok := group[connectionID]
	if !ok {
		return false
	}
	fn(&entry.payload)
	group[connectionID] = entry
	return true
}

// Members returns a copy of a group's entries in join order
func (r *Registry[P]) Members(groupID string) []Member[P] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.groups[groupID]
	type ordered struct {
		member Member[P]
		seq    uint64
	}
	entries := make([]ordered, 0, len(group))
	for connectionID, entry := range group {
		entries = append(entries, ordered{
			member: Member[P]{ConnectionID: connectionID, Payload: entry.payload},
			seq:    entry.seq,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	members := make([]Member[P], len(entries))
	for i, e := range entries {
		members[i] = e.member
	}
	return members
}

// Counts returns the size of every non-empty group
func (r *Registry[P]) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.groups))
	for groupID, group := range r.groups {
		counts[groupID] = len(group)
	}
	return counts
}
