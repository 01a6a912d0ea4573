// Package netsync is the client session engine: it gates inbound packets on
// the handshake, dispatches them to the world, ownership and reconciliation
// components, and drives the per-physics-step ownership traffic.
package netsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"worldsync.gg/internal/outbound"
	"worldsync.gg/internal/ownership"
	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/reconcile"
	"worldsync.gg/internal/script"
	"worldsync.gg/internal/tick"
	"worldsync.gg/internal/world"
)

const (
	DefaultProximityRadius = 400
	DefaultLookaheadTicks  = 30
)

// ErrTransportClosed ends Run when the inbound stream closes.
var ErrTransportClosed = errors.New("netsync: transport closed")

// State is the session lifecycle stage.
type State int32

const (
	AwaitingHandshake State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting_handshake"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// PacketRecorder captures raw traffic for offline inspection.
type PacketRecorder interface {
	Inbound(tick int64, payload []byte) error
	Outbound(kind string, tick int64, payload []byte) error
}

// LatencyStore persists the artificial send latency override.
type LatencyStore interface {
	SendLatency(ctx context.Context) (time.Duration, bool, error)
	SetSendLatency(ctx context.Context, d time.Duration) error
}

// Advancer is implemented by worlds whose live solver step is driven from
// the engine loop.
type Advancer interface {
	Advance(tick int64, at time.Duration, dt float64)
}

type Options struct {
	// ProtocolVersion is the revision announced in handshake_ready and
	// compared with the server's. Zero means protocol.Version.
	ProtocolVersion int

	ProximityRadius float64
	LookaheadTicks  int64
	LeaseGCTicks    int64
	MaxParallel     int

	SendLatency   time.Duration
	RequestRateHz float64
	RequestBurst  int

	Scripts *script.Runner
	Store   LatencyStore
	Capture PacketRecorder
	Logger  *slog.Logger
}

type queuedPacket struct {
	pkt protocol.Inbound
	raw []byte
}

// Engine is the client session. HandleMessage, OnPhysicsStep and Teardown
// must be called from a single goroutine (Run does this); the query methods
// are safe from any goroutine.
type Engine struct {
	world   world.World
	clock   *tick.Clock
	out     *outbound.Channel
	leases  *ownership.Manager
	rec     *reconcile.Reconciler
	scripts *script.Runner
	store   LatencyStore
	capture PacketRecorder
	log     *slog.Logger

	version   int
	radius    float64
	lookahead int64

	channels *channels
	synced   *syncedValues

	ready     chan struct{}
	readyOnce sync.Once
	script    *script.Script

	mu      sync.RWMutex
	state   State
	selfID  string
	pending []queuedPacket
	players map[string]world.Entity
	local   world.Entity
}

// New wires an engine around a world and a transport sender. A latency
// override found in opts.Store wins over opts.SendLatency.
func New(ctx context.Context, w world.World, sender outbound.Sender, clock *tick.Clock, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProximityRadius <= 0 {
		opts.ProximityRadius = DefaultProximityRadius
	}
	if opts.LookaheadTicks <= 0 {
		opts.LookaheadTicks = DefaultLookaheadTicks
	}
	if opts.ProtocolVersion <= 0 {
		opts.ProtocolVersion = protocol.Version
	}

	e := &Engine{
		world:     w,
		clock:     clock,
		scripts:   opts.Scripts,
		store:     opts.Store,
		capture:   opts.Capture,
		log:       logger.With("component", "netsync"),
		version:   opts.ProtocolVersion,
		radius:    opts.ProximityRadius,
		lookahead: opts.LookaheadTicks,
		channels:  newChannels(),
		synced:    newSyncedValues(),
		ready:     make(chan struct{}),
		players:   map[string]world.Entity{},
	}

	latency := opts.SendLatency
	if e.store != nil {
		d, ok, err := e.store.SendLatency(ctx)
		switch {
		case err != nil:
			e.log.Warn("reading send latency override", "error", err)
		case ok:
			latency = d
		}
	}

	var tap outbound.Tap
	if e.capture != nil {
		tap = func(kind protocol.Kind, t int64, raw []byte) {
			if err := e.capture.Outbound(string(kind), t, raw); err != nil {
				e.log.Warn("capture outbound", "error", err)
			}
		}
	}
	e.out = outbound.New(sender, clock, outbound.Options{
		Latency:      latency,
		RequestRate:  opts.RequestRateHz,
		RequestBurst: opts.RequestBurst,
		Tap:          tap,
		Logger:       logger,
	})
	e.leases = ownership.NewManager(w, opts.LeaseGCTicks, logger)
	e.rec = reconcile.New(w, e.leases, clock, opts.MaxParallel, logger)
	return e
}

// Out is the outbound command channel for gameplay code.
func (e *Engine) Out() *outbound.Channel { return e.out }

func (e *Engine) Clock() *tick.Clock { return e.clock }

// Ready is closed once the handshake has completed and every packet queued
// before it has been processed.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) SelfID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selfID
}

// LocalPlayer returns the entity spawned for this client, if any.
func (e *Engine) LocalPlayer() world.Entity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.local
}

// Player returns the puppet of a remote client.
func (e *Engine) Player(clientID string) (world.Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.players[clientID]
	return p, ok
}

// IsControlling reports whether this client holds a live lease on an entity
// at the current tick.
func (e *Engine) IsControlling(entityID string) bool {
	return e.leases.IsControlling(entityID, e.clock.Now())
}

// Subscribe registers a listener for custom messages on a channel. The
// returned function removes it.
func (e *Engine) Subscribe(channel string, fn Listener) func() {
	return e.channels.subscribe(channel, fn)
}

func (e *Engine) SyncedValue(key string) (any, bool) { return e.synced.get(key) }

// WatchSyncedValue registers fn for updates of key. The returned function
// removes it.
func (e *Engine) WatchSyncedValue(key string, fn SyncedWatcher) func() {
	return e.synced.watch(key, fn)
}

// SendCustom lets world scripts publish custom messages.
func (e *Engine) SendCustom(channel string, data map[string]any) error {
	return e.out.SendCustomMessage(channel, data)
}

// SetSendLatency changes the artificial send delay and persists it.
func (e *Engine) SetSendLatency(ctx context.Context, d time.Duration) error {
	e.out.SetLatency(d)
	if e.store == nil {
		return nil
	}
	return e.store.SetSendLatency(ctx, d)
}

type Status struct {
	State    string `json:"state"`
	SelfID   string `json:"self_id,omitempty"`
	Tick     int64  `json:"tick"`
	Pending  int    `json:"pending"`
	Leases   int    `json:"leases"`
	Entities int    `json:"entities"`
	Players  int    `json:"players"`
	Latency  string `json:"send_latency"`

	Controlled []ownership.Lease `json:"controlled,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	st := Status{
		State:   e.state.String(),
		SelfID:  e.selfID,
		Pending: len(e.pending),
		Players: len(e.players),
	}
	e.mu.RUnlock()
	st.Tick = e.clock.Now()
	st.Controlled = e.leases.Leases()
	st.Leases = len(st.Controlled)
	st.Entities = len(e.world.Entities())
	st.Latency = e.out.Latency().String()
	return st
}

// HandleMessage processes one raw inbound message. Malformed input and
// handler failures are logged and never returned.
func (e *Engine) HandleMessage(ctx context.Context, raw []byte) {
	if e.capture != nil {
		if err := e.capture.Inbound(e.clock.Now(), raw); err != nil {
			e.log.Warn("capture inbound", "error", err)
		}
	}
	pkt, err := protocol.Decode(raw)
	if err != nil {
		e.log.Warn("dropping malformed packet", "payload", string(raw), "error", err)
		return
	}

	e.mu.Lock()
	switch e.state {
	case Closed:
		e.mu.Unlock()
		e.log.Debug("packet after teardown dropped", "kind", pkt.Kind())
		return
	case AwaitingHandshake:
		hs, ok := pkt.(protocol.Handshake)
		if !ok {
			e.pending = append(e.pending, queuedPacket{pkt: pkt, raw: raw})
			n := len(e.pending)
			e.mu.Unlock()
			e.log.Debug("queued until handshake", "kind", pkt.Kind(), "queued", n)
			return
		}
		e.mu.Unlock()
		e.completeHandshake(ctx, hs, raw)
		return
	}
	e.mu.Unlock()
	e.dispatch(ctx, pkt, raw)
}

// completeHandshake acknowledges the server, assigns the self id and then
// processes the queued packets in arrival order before the handshake
// itself is dispatched.
func (e *Engine) completeHandshake(ctx context.Context, hs protocol.Handshake, raw []byte) {
	if hs.ProtocolVersion != e.version {
		e.log.Warn("protocol version mismatch", "server_version", hs.ProtocolVersion, "client_version", e.version)
	}
	s, err := e.scripts.Load(hs.WorldScript, e)
	if err != nil {
		e.log.Error("world script failed", "script", hs.WorldScript, "error", err)
	}
	e.script = s
	if err := e.out.SendHandshakeReady(e.version); err != nil {
		e.log.Warn("sending handshake_ready", "error", err)
	}

	e.mu.Lock()
	e.selfID = hs.ClientID
	e.state = Active
	queue := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, q := range queue {
		if e.State() == Closed {
			return
		}
		e.dispatch(ctx, q.pkt, q.raw)
	}
	if e.State() == Closed {
		return
	}
	e.dispatch(ctx, hs, raw)
}

// dispatch runs one packet's handler. Errors and panics stop here.
func (e *Engine) dispatch(ctx context.Context, pkt protocol.Inbound, raw []byte) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("packet handler panicked", "kind", pkt.Kind(), "payload", string(raw), "panic", p)
		}
	}()
	if err := e.route(ctx, pkt); err != nil {
		e.log.Error("packet handler failed", "kind", pkt.Kind(), "payload", string(raw), "error", err)
	}
}

// OnPhysicsStep runs once per simulation step: it pushes the controlled
// objects snapshot, asks for control of nearby shared objects, then
// advances the tick.
func (e *Engine) OnPhysicsStep() {
	if e.State() == Active {
		now := e.clock.Now()
		if entities, ok := e.leases.ComputeOutgoingSnapshot(now); ok {
			if err := e.out.SendControlledObjectsSnapshot(entities); err != nil && !errors.Is(err, outbound.ErrClosed) {
				e.log.Warn("sending controlled objects", "error", err)
			}
		}
		e.requestNearbyControl(now)
	}
	e.clock.Advance()
}

// requestNearbyControl asks for every replicated, client-controllable entity
// whose first body lies within the proximity radius of the local player's
// first body and whose lease does not already cover the lookahead window.
func (e *Engine) requestNearbyControl(now int64) {
	local := e.LocalPlayer()
	if local == nil {
		return
	}
	anchor, ok := world.Anchor(e.world, local)
	if !ok {
		return
	}
	for _, ent := range e.world.Entities() {
		id := ent.UID()
		if id == local.UID() {
			continue
		}
		def := ent.Definition()
		if !def.Replicated || def.ServerAuthoritative {
			continue
		}
		pos, ok := world.Anchor(e.world, ent)
		if !ok || pos.Sub(anchor).Len() > e.radius {
			continue
		}
		if e.leases.IsControlling(id, now+e.lookahead) {
			continue
		}
		switch err := e.out.RequestObjectControl(id); {
		case err == nil:
		case errors.Is(err, outbound.ErrThrottled), errors.Is(err, outbound.ErrClosed):
			e.log.Debug("control request skipped", "entity_id", id, "error", err)
		default:
			e.log.Warn("control request failed", "entity_id", id, "error", err)
		}
	}
}

// Teardown ends the session: sending stops, queued packets are discarded and
// network-spawned players are destroyed. Later packets are dropped.
func (e *Engine) Teardown(ctx context.Context) {
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return
	}
	e.state = Closed
	e.pending = nil
	players := e.players
	local := e.local
	e.players = map[string]world.Entity{}
	e.local = nil
	e.mu.Unlock()

	e.out.Close()
	for id, p := range players {
		if err := e.world.Destroy(ctx, p); err != nil {
			e.log.Warn("destroying player", "client_id", id, "error", err)
		}
	}
	if local != nil {
		if err := e.world.Destroy(ctx, local); err != nil {
			e.log.Warn("destroying local player", "error", err)
		}
	}
	e.log.Info("session closed", "players", len(players))
}

// Run owns the engine: it processes inbound messages and physics steps one at
// a time until ctx ends or the inbound stream closes. Worlds implementing
// Advancer are stepped before each OnPhysicsStep.
func (e *Engine) Run(ctx context.Context, inbound <-chan []byte, steps <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			e.Teardown(context.WithoutCancel(ctx))
			return ctx.Err()
		case raw, ok := <-inbound:
			if !ok {
				e.Teardown(ctx)
				return ErrTransportClosed
			}
			e.HandleMessage(ctx, raw)
		case <-steps:
			e.Step()
		}
	}
}

// Step runs one simulation step: the world's live solver step when it
// implements Advancer, then OnPhysicsStep.
func (e *Engine) Step() {
	if adv, ok := e.world.(Advancer); ok {
		now := e.clock.Now()
		adv.Advance(now, e.clock.SimTime(now), e.clock.StepSeconds())
	}
	e.OnPhysicsStep()
}
