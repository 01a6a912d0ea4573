package world

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"worldsync.gg/internal/protocol"
)

// HookFunc is a per-type physics hook for entities spawned by Memory.
type HookFunc func(e Entity, at time.Duration, step StepData)

// Memory is a goroutine-safe in-process World. It integrates bodies with
// plain Euler steps; it is used by the probe client, offline replay and
// tests.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]Entity
	hooks    map[string]HookFunc
	refuse   map[string]bool
	seq      int
}

func NewMemory() *Memory {
	return &Memory{
		entities: map[string]Entity{},
		hooks:    map[string]HookFunc{},
		refuse:   map[string]bool{},
	}
}

// OnStep installs a physics hook for every entity of the given type spawned
// afterwards.
func (m *Memory) OnStep(typ string, fn HookFunc) {
	m.mu.Lock()
	m.hooks[typ] = fn
	m.mu.Unlock()
}

// Refuse makes Spawn decline definitions of the given type.
func (m *Memory) Refuse(typ string) {
	m.mu.Lock()
	m.refuse[typ] = true
	m.mu.Unlock()
}

func (m *Memory) Spawn(ctx context.Context, def protocol.EntityDef) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse[def.Type] {
		return nil, nil
	}
	if def.UID == "" {
		m.seq++
		def.UID = fmt.Sprintf("local_%d", m.seq)
	}
	if _, exists := m.entities[def.UID]; exists {
		return nil, fmt.Errorf("spawn %s: uid already in use", def.UID)
	}

	n, ok := bodyCount(def.Args)
	if !ok {
		return nil, fmt.Errorf("spawn %s: body_count above %d", def.UID, MaxBodies)
	}
	base := newMemEntity(def, n)
	var e Entity = base
	switch {
	case def.Type == TypeNetPlayer:
		e = &NetPlayer{memEntity: base}
	case m.hooks[def.Type] != nil:
		e = &hookedEntity{memEntity: base, hook: m.hooks[def.Type]}
	}
	m.entities[def.UID] = e
	return e, nil
}

func (m *Memory) Destroy(ctx context.Context, e Entity) error {
	if e == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, e.UID())
	return nil
}

func (m *Memory) Lookup(uid string) Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[uid]
	if !ok {
		return nil
	}
	return e
}

func (m *Memory) Bodies(e Entity) []Body {
	me := unwrap(e)
	if me == nil {
		return nil
	}
	out := make([]Body, len(me.bodies))
	for i, b := range me.bodies {
		out[i] = b
	}
	return out
}

// Entities returns all live entities ordered by UID.
func (m *Memory) Entities() []Entity {
	m.mu.RLock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UID() < out[j].UID() })
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Advance runs one live solver step: hooks first, then integration of every
// non-suspended entity.
func (m *Memory) Advance(tick int64, at time.Duration, dt float64) {
	for _, e := range m.Entities() {
		if e.Suspended() {
			continue
		}
		if s, ok := e.(PhysicsStepper); ok {
			s.OnPhysicsStep(at, StepData{Tick: tick, Dt: dt})
		}
		for _, b := range m.Bodies(e) {
			Integrate(b, dt)
		}
	}
}

type memEntity struct {
	mu        sync.Mutex
	def       protocol.EntityDef
	suspended bool
	bodies    []*memBody
}

func newMemEntity(def protocol.EntityDef, n int) *memEntity {
	e := &memEntity{def: def}
	e.bodies = make([]*memBody, n)
	for i := range e.bodies {
		e.bodies[i] = &memBody{mu: &e.mu, pos: def.Transform.Position, angle: def.Transform.Rotation}
	}
	return e
}

// MaxBodies caps args.body_count for entities spawned by Memory.
const MaxBodies = 64

// bodyCount reads args.body_count, defaulting to one body. ok is false when
// the count is above MaxBodies.
func bodyCount(args map[string]any) (n int, ok bool) {
	var f float64
	switch v := args["body_count"].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		x, err := v.Float64()
		if err != nil {
			return 1, true
		}
		f = x
	default:
		return 1, true
	}
	switch {
	case f > MaxBodies:
		return 0, false
	case f < 0:
		return 0, true
	}
	return int(f), true
}

func (e *memEntity) UID() string { return e.def.UID }

func (e *memEntity) Definition() protocol.EntityDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.def
}

func (e *memEntity) SetTransform(t protocol.Transform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.def.Transform = t
}

func (e *memEntity) SetArgs(args map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.def.Args = args
}

func (e *memEntity) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

func (e *memEntity) SetSuspended(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suspended = v
}

type hookedEntity struct {
	*memEntity
	hook HookFunc
}

func (e *hookedEntity) OnPhysicsStep(at time.Duration, step StepData) {
	e.hook(e, at, step)
}

// NetPlayer is the Memory world's remote player puppet.
type NetPlayer struct {
	*memEntity

	flipped   bool
	animation string
	gear      protocol.Gear
	lastTick  int64
}

func (p *NetPlayer) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.def.Args["client_id"].(string); ok {
		return id
	}
	return ""
}

func (p *NetPlayer) ApplyMotion(m protocol.Motion) {
	p.mu.Lock()
	p.flipped = m.Flipped
	p.lastTick = m.Tick
	p.mu.Unlock()
	if len(p.bodies) == 0 {
		return
	}
	p.bodies[0].SetPosition(m.Position)
	p.bodies[0].SetVelocity(m.Velocity)
}

func (p *NetPlayer) SetAnimation(a string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.animation = a
}

func (p *NetPlayer) SetGear(g protocol.Gear) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gear = g
}

// Look returns the puppet's presentation state.
func (p *NetPlayer) Look() (animation string, flipped bool, gear protocol.Gear) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.animation, p.flipped, p.gear
}

// unwrap finds the Memory-owned entity behind e.
func unwrap(e Entity) *memEntity {
	switch v := e.(type) {
	case *memEntity:
		return v
	case *hookedEntity:
		return v.memEntity
	case *NetPlayer:
		return v.memEntity
	}
	return nil
}

type memBody struct {
	mu     *sync.Mutex
	pos    protocol.Vec2
	vel    protocol.Vec2
	angle  float64
	angVel float64
}

func (b *memBody) Position() protocol.Vec2 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

func (b *memBody) SetPosition(v protocol.Vec2) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = v
}

func (b *memBody) Velocity() protocol.Vec2 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vel
}

func (b *memBody) SetVelocity(v protocol.Vec2) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vel = v
}

func (b *memBody) Angle() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.angle
}

func (b *memBody) SetAngle(a float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.angle = a
}

func (b *memBody) AngularVelocity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.angVel
}

func (b *memBody) SetAngularVelocity(w float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.angVel = w
}
