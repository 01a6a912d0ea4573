package netsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldsync.gg/internal/localstore"
	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/script"
	"worldsync.gg/internal/tick"
	"worldsync.gg/internal/world"
)

type sender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *sender) Send(_ context.Context, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), b...))
	return nil
}

func (s *sender) docs(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.sent))
	for _, b := range s.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		out = append(out, m)
	}
	return out
}

func (s *sender) kinds(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, d := range s.docs(t) {
		out = append(out, d["t"].(string))
	}
	return out
}

func (s *sender) ofKind(t *testing.T, kind string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, d := range s.docs(t) {
		if d["t"] == kind {
			out = append(out, d)
		}
	}
	return out
}

// logs collects records for assertions on what was logged.
type logs struct {
	mu   sync.Mutex
	recs []slog.Record
}

func (l *logs) Enabled(context.Context, slog.Level) bool { return true }
func (l *logs) WithAttrs([]slog.Attr) slog.Handler      { return l }
func (l *logs) WithGroup(string) slog.Handler           { return l }
func (l *logs) Handle(_ context.Context, r slog.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, r.Clone())
	return nil
}

func (l *logs) messages(level slog.Level) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, r := range l.recs {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// attrs returns the attributes of the first record with msg.
func (l *logs) attrs(msg string) map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.recs {
		if r.Message != msg {
			continue
		}
		out := map[string]any{}
		r.Attrs(func(a slog.Attr) bool {
			out[a.Key] = a.Value.Any()
			return true
		})
		return out
	}
	return nil
}

type harness struct {
	engine *Engine
	world  *world.Memory
	sender *sender
	logs   *logs
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{world: world.NewMemory(), sender: &sender{}, logs: &logs{}}
	opts.Logger = slog.New(h.logs)
	h.engine = New(context.Background(), h.world, h.sender, tick.NewClock(10*time.Millisecond), opts)
	t.Cleanup(func() { h.engine.Teardown(context.Background()) })
	return h
}

func (h *harness) feed(t *testing.T, v any) {
	t.Helper()
	var raw []byte
	switch m := v.(type) {
	case string:
		raw = []byte(m)
	case []byte:
		raw = m
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		raw = b
	}
	h.engine.HandleMessage(context.Background(), raw)
}

func (h *harness) handshake(t *testing.T, clientID string) {
	t.Helper()
	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: clientID})
	require.Equal(t, Active, h.engine.State())
}

func (h *harness) advanceTo(n int64) {
	for h.engine.Clock().Now() < n {
		h.engine.Clock().Advance()
	}
}

func isReady(e *Engine) bool {
	select {
	case <-e.Ready():
		return true
	default:
		return false
	}
}

func custom(channel string, n int) protocol.CustomMessage {
	return protocol.CustomMessage{T: protocol.KindCustomMessage, Channel: channel, Data: map[string]any{"n": n}}
}

func TestEngine_QueuesUntilHandshakeThenDrainsInOrder(t *testing.T) {
	h := newHarness(t, Options{})
	e := h.engine

	var got []float64
	var readyDuringDrain []bool
	e.Subscribe("chat", func(m protocol.CustomMessage) {
		got = append(got, m.Data["n"].(float64))
		readyDuringDrain = append(readyDuringDrain, isReady(e))
	})

	h.feed(t, custom("chat", 1))
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "crate", Type: "crate"}})
	h.feed(t, custom("chat", 2))

	assert.Empty(t, got, "nothing dispatched before the handshake")
	assert.Nil(t, h.world.Lookup("crate"))
	assert.Equal(t, 3, e.Status().Pending)
	assert.Equal(t, AwaitingHandshake, e.State())
	assert.False(t, isReady(e))
	assert.Empty(t, h.sender.docs(t))

	h.handshake(t, "me")

	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, []bool{false, false}, readyDuringDrain, "queued packets run before the handshake is dispatched")
	assert.NotNil(t, h.world.Lookup("crate"))
	assert.True(t, isReady(e))
	assert.Equal(t, "me", e.SelfID())
	assert.Equal(t, 0, e.Status().Pending)
	assert.Equal(t, []string{"handshake_ready"}, h.sender.kinds(t))
}

func TestEngine_VersionMismatchIsSoft(t *testing.T) {
	h := newHarness(t, Options{})
	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version + 1, ClientID: "me"})

	assert.Equal(t, Active, h.engine.State())
	assert.True(t, isReady(h.engine))
	assert.Contains(t, h.logs.messages(slog.LevelWarn), "protocol version mismatch")
}

func TestEngine_ConfiguredProtocolVersion(t *testing.T) {
	h := newHarness(t, Options{ProtocolVersion: 6})
	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: 7, ClientID: "me"})

	assert.EqualValues(t, 6, h.sender.ofKind(t, "handshake_ready")[0]["protocol_version"])
	got := h.logs.attrs("protocol version mismatch")
	require.NotNil(t, got)
	assert.EqualValues(t, 6, got["client_version"])
	assert.EqualValues(t, 7, got["server_version"])

	matching := newHarness(t, Options{ProtocolVersion: 6})
	matching.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: 6, ClientID: "me"})
	assert.Nil(t, matching.logs.attrs("protocol version mismatch"))
}

func TestEngine_DuplicateHandshakeIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: "other"})

	assert.Equal(t, "me", h.engine.SelfID())
	assert.Equal(t, []string{"handshake_ready"}, h.sender.kinds(t))
	assert.Contains(t, h.logs.messages(slog.LevelWarn), "duplicate handshake ignored")
}

func TestEngine_RunsWorldScriptAtHandshake(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arena.lua"), []byte(`
function on_ready(id)
  send_custom("chat", "joined " .. id)
end
`), 0o644))
	h := newHarness(t, Options{Scripts: script.NewRunner(dir, nil)})

	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: "me", WorldScript: "arena"})

	assert.Equal(t, []string{"handshake_ready", "custom_message"}, h.sender.kinds(t))
	msg := h.sender.ofKind(t, "custom_message")[0]
	assert.Equal(t, map[string]any{"text": "joined me"}, msg["data"])
}

func TestEngine_BrokenWorldScriptStillBecomesReady(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte(`error("boom")`), 0o644))
	h := newHarness(t, Options{Scripts: script.NewRunner(dir, nil)})

	h.feed(t, protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: "me", WorldScript: "bad"})

	assert.True(t, isReady(h.engine))
	assert.Contains(t, h.logs.messages(slog.LevelError), "world script failed")
}

func TestEngine_ControlScenario(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{
		UID: "e1", Type: "ball", Replicated: true,
		Transform: protocol.Transform{Position: protocol.Vec2{1, 1}},
	}})
	require.NoError(t, h.engine.Out().RequestObjectControl("e1"))
	assert.Equal(t, "e1", h.sender.ofKind(t, "physics_request_object_control")[0]["entity_id"])

	h.advanceTo(100)
	h.feed(t, protocol.PhysicsGrantObjectControl{T: protocol.KindPhysicsGrantObjectControl, EntityID: "e1", ExpiryTick: 130})

	h.advanceTo(120)
	assert.True(t, h.engine.IsControlling("e1"))

	h.advanceTo(125)
	h.feed(t, protocol.PhysicsFullSnapshot{
		T:                    protocol.KindPhysicsFullSnapshot,
		LastClientTickNumber: 125,
		Entities: []protocol.EntitySnapshot{{
			EntityID:   "e1",
			Definition: protocol.EntityDef{Type: "ball"},
			Bodies:     []protocol.BodyState{{Position: protocol.Vec2{40, 40}, Velocity: protocol.Vec2{3, 3}}},
		}},
	})
	e1 := h.world.Lookup("e1")
	require.NotNil(t, e1)
	assert.Equal(t, protocol.Vec2{1, 1}, h.world.Bodies(e1)[0].Position())
	assert.Equal(t, protocol.Vec2{}, h.world.Bodies(e1)[0].Velocity())

	h.advanceTo(131)
	assert.False(t, h.engine.IsControlling("e1"))
}

func TestEngine_SnapshotReplaysMissedTicks(t *testing.T) {
	h := newHarness(t, Options{})
	var replayed []int64
	h.world.OnStep("ball", func(_ world.Entity, _ time.Duration, s world.StepData) {
		if s.Replay {
			replayed = append(replayed, s.Tick)
		}
	})
	h.handshake(t, "me")
	h.advanceTo(10)

	h.feed(t, protocol.PhysicsDeltaSnapshot{
		T:                    protocol.KindPhysicsDeltaSnapshot,
		LastClientTickNumber: 7,
		NewEntities: []protocol.EntitySnapshot{{
			EntityID:   "b",
			Definition: protocol.EntityDef{Type: "ball"},
			Bodies:     []protocol.BodyState{{Velocity: protocol.Vec2{100, 0}}},
		}},
	})
	assert.Equal(t, []int64{7, 8, 9}, replayed)
	b := h.world.Lookup("b")
	require.NotNil(t, b)
	assert.InDelta(t, 3.0, h.world.Bodies(b)[0].Position().X(), 1e-9)
}

func TestEngine_OnPhysicsStepSendsControlledObjects(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "e1", Type: "crate"}})
	h.advanceTo(5)

	h.engine.OnPhysicsStep()
	assert.Empty(t, h.sender.ofKind(t, "physics_controlled_objects_snapshot"), "no lease, nothing sent")
	assert.Equal(t, int64(6), h.engine.Clock().Now())

	h.feed(t, protocol.PhysicsGrantObjectControl{T: protocol.KindPhysicsGrantObjectControl, EntityID: "e1", ExpiryTick: 50})
	h.world.Bodies(h.world.Lookup("e1"))[0].SetPosition(protocol.Vec2{2, 3})
	h.engine.OnPhysicsStep()

	snaps := h.sender.ofKind(t, "physics_controlled_objects_snapshot")
	require.Len(t, snaps, 1)
	assert.EqualValues(t, 6, snaps[0]["tick"], "stamped before the tick advances")
	bodies := snaps[0]["entities"].(map[string]any)["e1"].([]any)
	require.Len(t, bodies, 1)
	assert.Equal(t, []any{2.0, 3.0}, bodies[0].(map[string]any)["position"])
	assert.Equal(t, int64(7), h.engine.Clock().Now())
}

func TestEngine_RequestsControlOfNearbyObjects(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnPlayer{T: protocol.KindSpawnPlayer, ClientID: "me", Position: protocol.Vec2{0, 0}})
	require.NotNil(t, h.engine.LocalPlayer())

	spawn := func(uid string, x float64, replicated, serverAuth bool) {
		h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{
			UID: uid, Type: "crate", Replicated: replicated, ServerAuthoritative: serverAuth,
			Transform: protocol.Transform{Position: protocol.Vec2{x, 0}},
		}})
	}
	spawn("near", 100, true, false)
	spawn("edge", 400, true, false)
	spawn("far", 401, true, false)
	spawn("server_owned", 50, true, true)
	spawn("local_only", 50, false, false)
	spawn("held", 60, true, false)
	spawn("expiring", 70, true, false)

	h.advanceTo(10)
	h.feed(t, protocol.PhysicsGrantObjectControl{T: protocol.KindPhysicsGrantObjectControl, EntityID: "held", ExpiryTick: 40})
	h.feed(t, protocol.PhysicsGrantObjectControl{T: protocol.KindPhysicsGrantObjectControl, EntityID: "expiring", ExpiryTick: 39})

	h.engine.OnPhysicsStep()

	var requested []string
	for _, d := range h.sender.ofKind(t, "physics_request_object_control") {
		requested = append(requested, d["entity_id"].(string))
	}
	assert.ElementsMatch(t, []string{"near", "edge", "expiring"}, requested)
}

func TestEngine_NoControlRequestsWithoutLocalPlayer(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "near", Type: "crate", Replicated: true}})

	h.engine.OnPhysicsStep()
	assert.Empty(t, h.sender.ofKind(t, "physics_request_object_control"))
}

func TestEngine_ControlRequestsThrottled(t *testing.T) {
	h := newHarness(t, Options{RequestRateHz: 0.001, RequestBurst: 1})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnPlayer{T: protocol.KindSpawnPlayer, ClientID: "me", Position: protocol.Vec2{}})
	for _, id := range []string{"a", "b"} {
		h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: id, Type: "crate", Replicated: true}})
	}

	h.engine.OnPhysicsStep()
	h.engine.OnPhysicsStep()
	assert.Len(t, h.sender.ofKind(t, "physics_request_object_control"), 1)
}

func TestEngine_CustomMessageListeners(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")

	var a, b, other int
	unsubA := h.engine.Subscribe("chat", func(protocol.CustomMessage) { a++ })
	h.engine.Subscribe("chat", func(protocol.CustomMessage) { b++ })
	h.engine.Subscribe("trade", func(protocol.CustomMessage) { other++ })

	h.feed(t, custom("chat", 1))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 0, other)

	h.feed(t, custom("lobby", 2))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	unsubA()
	unsubA()
	h.feed(t, custom("chat", 3))
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestEngine_MalformedInputIsDroppedAndLogged(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{
		UID: "e1", Type: "crate", Transform: protocol.Transform{Position: protocol.Vec2{5, 5}},
	}})

	bad := []string{
		`{"t":"teleport","entity_id":"e1"}`,
		`{"entity_id":"e1"}`,
		`{"t":"destroy_entity"}`,
		`{"t":"physics_full_snapshot","last_client_tick_number":"soon","entities":[]}`,
		`{"t":"player_motion","tick":1,"position":[0,0],"velocity":[0,0],"flipped":false}`,
		`[1,2,3]`,
		`{{{`,
		``,
	}
	for _, raw := range bad {
		assert.NotPanics(t, func() { h.feed(t, raw) }, raw)
	}

	e1 := h.world.Lookup("e1")
	require.NotNil(t, e1)
	assert.Equal(t, protocol.Vec2{5, 5}, h.world.Bodies(e1)[0].Position())
	assert.Equal(t, 1, h.world.Len())
	assert.Equal(t, Active, h.engine.State())
	assert.Len(t, h.logs.messages(slog.LevelWarn), len(bad))
}

func TestEngine_MalformedBeforeHandshakeDoesNotQueue(t *testing.T) {
	h := newHarness(t, Options{})
	h.feed(t, `{"t":"nope"}`)
	h.feed(t, custom("chat", 1))
	assert.Equal(t, 1, h.engine.Status().Pending)
}

type panickyWorld struct {
	*world.Memory
}

func (w panickyWorld) Spawn(ctx context.Context, def protocol.EntityDef) (world.Entity, error) {
	if def.Type == "bomb" {
		panic("spawn exploded")
	}
	return w.Memory.Spawn(ctx, def)
}

func TestEngine_HandlerPanicDoesNotStopLaterPackets(t *testing.T) {
	mem := world.NewMemory()
	lg := &logs{}
	e := New(context.Background(), panickyWorld{mem}, &sender{}, tick.NewClock(0), Options{Logger: slog.New(lg)})
	defer e.Teardown(context.Background())
	ctx := context.Background()

	feed := func(v any) {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		e.HandleMessage(ctx, b)
	}
	feed(protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "boom", Type: "bomb"}})
	feed(protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "ok", Type: "crate"}})
	feed(protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: "me"})

	assert.NotNil(t, mem.Lookup("ok"))
	assert.Contains(t, lg.messages(slog.LevelError), "packet handler panicked")
	assert.True(t, isReady(e))
}

func TestEngine_DisconnectingTearsDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.handshake(t, "me")
	h.feed(t, protocol.SpawnPlayer{T: protocol.KindSpawnPlayer, ClientID: "me"})
	h.feed(t, protocol.SpawnPlayer{T: protocol.KindSpawnPlayer, ClientID: "other"})
	h.feed(t, protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "crate", Type: "crate"}})
	require.Equal(t, 3, h.world.Len())

	h.feed(t, protocol.Disconnecting{T: protocol.KindDisconnecting, Reason: "server restart"})

	assert.Equal(t, Closed, h.engine.State())
	assert.Equal(t, 1, h.world.Len(), "only network-spawned players are removed")
	assert.Nil(t, h.engine.LocalPlayer())
	assert.True(t, h.engine.Out().Closed())
	assert.Error(t, h.engine.Out().SendAnimationChange("wave"))

	h.feed(t, protocol.DestroyEntity{T: protocol.KindDestroyEntity, EntityID: "crate"})
	assert.NotNil(t, h.world.Lookup("crate"), "packets after teardown are dropped")

	before := h.engine.Clock().Now()
	h.engine.OnPhysicsStep()
	assert.Equal(t, before+1, h.engine.Clock().Now())
}

func TestEngine_SendLatencyOverridePersists(t *testing.T) {
	ctx := context.Background()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer store.Close()

	h := newHarness(t, Options{Store: store, SendLatency: 5 * time.Millisecond})
	assert.Equal(t, 5*time.Millisecond, h.engine.Out().Latency())

	require.NoError(t, h.engine.SetSendLatency(ctx, 250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, h.engine.Out().Latency())

	again := New(ctx, world.NewMemory(), &sender{}, tick.NewClock(0), Options{Store: store})
	defer again.Teardown(ctx)
	assert.Equal(t, 250*time.Millisecond, again.Out().Latency(), "stored override wins")
	assert.Equal(t, "250ms", again.Status().Latency)
}

type fakeCapture struct {
	in  [][]byte
	out []string
}

func (c *fakeCapture) Inbound(_ int64, payload []byte) error {
	c.in = append(c.in, payload)
	return nil
}

func (c *fakeCapture) Outbound(kind string, _ int64, _ []byte) error {
	c.out = append(c.out, kind)
	return nil
}

func TestEngine_CapturesTraffic(t *testing.T) {
	capt := &fakeCapture{}
	h := newHarness(t, Options{Capture: capt})
	h.feed(t, `garbage`)
	h.handshake(t, "me")

	assert.Len(t, capt.in, 2, "malformed input is captured too")
	assert.Equal(t, []string{"handshake_ready"}, capt.out)
}

func TestEngine_Run(t *testing.T) {
	h := newHarness(t, Options{})
	var live []int64
	h.world.OnStep("ball", func(_ world.Entity, _ time.Duration, s world.StepData) {
		if !s.Replay {
			live = append(live, s.Tick)
		}
	})

	inbound := make(chan []byte, 4)
	steps := make(chan time.Time)
	hs, err := json.Marshal(protocol.Handshake{T: protocol.KindHandshake, ProtocolVersion: protocol.Version, ClientID: "me"})
	require.NoError(t, err)
	sp, err := json.Marshal(protocol.SpawnEntity{T: protocol.KindSpawnEntity, Definition: protocol.EntityDef{UID: "b", Type: "ball"}})
	require.NoError(t, err)
	inbound <- hs
	inbound <- sp

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(context.Background(), inbound, steps) }()

	require.NoError(t, h.engine.WaitReady(context.Background()))
	// The spawn is processed before the first step is accepted: the loop
	// handles one event at a time and inbound was filled first.
	require.Eventually(t, func() bool { return h.engine.Status().Entities == 1 }, time.Second, time.Millisecond)
	steps <- time.Now()
	steps <- time.Now()
	close(inbound)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, []int64{0, 1}, live)
	assert.Equal(t, int64(2), h.engine.Clock().Now())
	assert.Equal(t, Closed, h.engine.State())
}

func TestEngine_RunStopsOnContext(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, make(chan []byte), nil) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Closed, h.engine.State())
}

func TestEngine_WaitReadyHonoursContext(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.engine.WaitReady(ctx), context.DeadlineExceeded)
}
