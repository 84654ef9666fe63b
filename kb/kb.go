package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/satpool/model"
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventSatelliteAdded EventType = iota
	EventSatelliteUpdated
	EventSatelliteRemoved
)

func (t EventType) String() string {
	switch t {
	case EventSatelliteAdded:
		return "added"
	case EventSatelliteUpdated:
		return "updated"
	case EventSatelliteRemoved:
		return "removed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type      EventType
	Satellite model.Satellite
}

// Catalog is an in-memory, thread-safe store of satellites. Satellites are
// stored by value and handed out as copies, so callers never share state
// with the catalog.
type Catalog struct {
	mu sync.RWMutex

	satellites map[string]model.Satellite

	nextSub int
	subs    map[int]func(Event)
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		satellites: make(map[string]model.Satellite),
		subs:       make(map[int]func(Event)),
	}
}

// AddSatellite adds a new satellite. It returns an error if the ID already
// exists.
func (c *Catalog) AddSatellite(s model.Satellite) error {
	if s.ID == "" {
		return fmt.Errorf("satellite ID must not be empty")
	}
	c.mu.Lock()
	if _, exists := c.satellites[s.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("satellite with ID %q already exists", s.ID)
	}
	c.satellites[s.ID] = s
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, Event{Type: EventSatelliteAdded, Satellite: s})
	return nil
}

// UpsertSatellite adds s or replaces the stored satellite with the same ID,
// typically after a TLE refresh. Replacing an identical record is a no-op
// and emits nothing.
func (c *Catalog) UpsertSatellite(s model.Satellite) error {
	if s.ID == "" {
		return fmt.Errorf("satellite ID must not be empty")
	}
	c.mu.Lock()
	prev, existed := c.satellites[s.ID]
	if existed && prev == s {
		c.mu.Unlock()
		return nil
	}
	c.satellites[s.ID] = s
	subs := c.subscribersLocked()
	c.mu.Unlock()

	typ := EventSatelliteAdded
	if existed {
		typ = EventSatelliteUpdated
	}
	notify(subs, Event{Type: typ, Satellite: s})
	return nil
}

// RemoveSatellite deletes a satellite. It returns an error if the ID is unknown.
func (c *Catalog) RemoveSatellite(id string) error {
	c.mu.Lock()
	s, ok := c.satellites[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("satellite with ID %q not found", id)
	}
	delete(c.satellites, id)
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, Event{Type: EventSatelliteRemoved, Satellite: s})
	return nil
}

// GetSatellite returns the satellite with the given ID.
func (c *Catalog) GetSatellite(id string) (model.Satellite, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.satellites[id]
	return s, ok
}

// Len returns the number of satellites in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.satellites)
}

// ListSatellites returns a snapshot of all satellites sorted by ID.
func (c *Catalog) ListSatellites() []model.Satellite {
	c.mu.RLock()
	res := make([]model.Satellite, 0, len(c.satellites))
	for _, s := range c.satellites {
		res = append(res, s)
	}
	c.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ByConstellation returns the satellites of one constellation sorted by ID.
func (c *Catalog) ByConstellation(name string) []model.Satellite {
	var res []model.Satellite
	for _, s := range c.ListSatellites() {
		if s.Constellation == name {
			res = append(res, s)
		}
	}
	return res
}

// Constellations returns the distinct constellation names, sorted.
func (c *Catalog) Constellations() []string {
	c.mu.RLock()
	seen := make(map[string]struct{})
	for _, s := range c.satellites {
		seen[s.Constellation] = struct{}{}
	}
	c.mu.RUnlock()

	res := make([]string, 0, len(seen))
	for name := range seen {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// subscribersLocked snapshots the callbacks in registration order. Callers
// must hold c.mu.
func (c *Catalog) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

// notify runs outside the lock so subscribers may call back into the catalog.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
