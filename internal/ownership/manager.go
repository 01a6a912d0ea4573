// Package ownership tracks which entities this client may simulate
// authoritatively, and for how long.
package ownership

import (
	"log/slog"
	"sort"
	"sync"

	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/world"
)

// DefaultGCTicks is how long an expired lease is kept before it is dropped.
const DefaultGCTicks = 240

// Lease grants control of one entity through ExpiryTick (inclusive).
type Lease struct {
	EntityID   string `json:"entity_id"`
	ExpiryTick int64  `json:"expiry_tick"`
}

// Manager holds the lease table. It reads body state from the world but
// never mutates the world.
type Manager struct {
	world   world.World
	gcTicks int64
	log     *slog.Logger

	mu     sync.RWMutex
	leases map[string]int64
}

func NewManager(w world.World, gcTicks int64, logger *slog.Logger) *Manager {
	if gcTicks <= 0 {
		gcTicks = DefaultGCTicks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		world:   w,
		gcTicks: gcTicks,
		log:     logger.With("component", "ownership"),
		leases:  map[string]int64{},
	}
}

// Grant creates a lease or extends an existing one. Leases never shrink.
func (m *Manager) Grant(entityID string, expiryTick int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[entityID]; ok && cur >= expiryTick {
		return
	}
	m.leases[entityID] = expiryTick
}

func (m *Manager) Revoke(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, entityID)
}

// IsControlling reports whether a lease covers tick.
func (m *Manager) IsControlling(entityID string, tick int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.leases[entityID]
	return ok && exp >= tick
}

// expiry returns the lease expiry for an entity, if any.
func (m *Manager) expiry(entityID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.leases[entityID]
	return exp, ok
}

// Leases returns the lease table ordered by entity id.
func (m *Manager) Leases() []Lease {
	m.mu.RLock()
	out := make([]Lease, 0, len(m.leases))
	for id, exp := range m.leases {
		out = append(out, Lease{EntityID: id, ExpiryTick: exp})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leases)
}

// ComputeOutgoingSnapshot collects body state for every entity under a live
// lease at currentTick. Leases more than gcTicks past expiry are dropped
// first. ok is false when no entity contributed and nothing should be sent.
func (m *Manager) ComputeOutgoingSnapshot(currentTick int64) (entities map[string][]protocol.BodyState, ok bool) {
	m.mu.Lock()
	live := make([]string, 0, len(m.leases))
	for id, exp := range m.leases {
		if exp+m.gcTicks < currentTick {
			delete(m.leases, id)
			m.log.Debug("lease collected", "entity_id", id, "expiry_tick", exp, "tick", currentTick)
			continue
		}
		if exp < currentTick {
			continue
		}
		live = append(live, id)
	}
	m.mu.Unlock()

	for _, id := range live {
		e := m.world.Lookup(id)
		if e == nil {
			continue
		}
		bodies := m.world.Bodies(e)
		states := make([]protocol.BodyState, len(bodies))
		for i, b := range bodies {
			states[i] = world.CaptureState(b)
		}
		if entities == nil {
			entities = map[string][]protocol.BodyState{}
		}
		entities[id] = states
	}
	return entities, entities != nil
}
