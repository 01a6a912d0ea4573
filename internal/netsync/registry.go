package netsync

import (
	"sort"
	"sync"

	"worldsync.gg/internal/protocol"
)

// Listener receives custom messages published on a channel.
type Listener func(protocol.CustomMessage)

// channels maps channel names to listener sets.
type channels struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]Listener
}

func newChannels() *channels {
	return &channels{subs: map[string]map[int]Listener{}}
}

// subscribe registers fn on channel and returns a function that removes it.
func (c *channels) subscribe(channel string, fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	set := c.subs[channel]
	if set == nil {
		set = map[int]Listener{}
		c.subs[channel] = set
	}
	set[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[channel], id)
			if len(c.subs[channel]) == 0 {
				delete(c.subs, channel)
			}
		})
	}
}

// listeners returns a snapshot of the listeners for channel in registration
// order, so callbacks may subscribe or unsubscribe while being invoked.
func (c *channels) listeners(channel string) []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.subs[channel]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = set[id]
	}
	return out
}

func (c *channels) publish(msg protocol.CustomMessage) int {
	ls := c.listeners(msg.Channel)
	for _, fn := range ls {
		fn(msg)
	}
	return len(ls)
}

// SyncedWatcher is notified with a synced value's new value.
type SyncedWatcher func(key string, value any)

// syncedValues holds the latest value per key announced by the server.
type syncedValues struct {
	mu       sync.RWMutex
	values   map[string]any
	next     int
	watchers map[string]map[int]SyncedWatcher
}

func newSyncedValues() *syncedValues {
	return &syncedValues{values: map[string]any{}, watchers: map[string]map[int]SyncedWatcher{}}
}

func (s *syncedValues) get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *syncedValues) set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	set := s.watchers[key]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]SyncedWatcher, len(ids))
	for i, id := range ids {
		fns[i] = set[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
}

func (s *syncedValues) watch(key string, fn SyncedWatcher) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	if s.watchers[key] == nil {
		s.watchers[key] = map[int]SyncedWatcher{}
	}
	s.watchers[key][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers[key], id)
	}
}
