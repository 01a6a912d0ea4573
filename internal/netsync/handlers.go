package netsync

import (
	"context"
	"fmt"

	"worldsync.gg/internal/protocol"
	"worldsync.gg/internal/reconcile"
	"worldsync.gg/internal/world"
)

// route hands a packet to its handler.
func (e *Engine) route(ctx context.Context, pkt protocol.Inbound) error {
	switch p := pkt.(type) {
	case protocol.Handshake:
		return e.onHandshake(p)
	case protocol.Disconnecting:
		e.log.Info("server is disconnecting", "reason", p.Reason)
		e.Teardown(ctx)
		return nil
	case protocol.SpawnPlayer:
		return e.onSpawnPlayer(ctx, p)
	case protocol.DespawnPlayer:
		return e.onDespawnPlayer(ctx, p)
	case protocol.PlayerMotionSnapshot:
		if pp, ok := e.puppet(p.ClientID); ok {
			pp.ApplyMotion(p.Motion)
		}
		return nil
	case protocol.PlayerAnimationSnapshot:
		if pp, ok := e.puppet(p.ClientID); ok {
			pp.SetAnimation(p.Animation)
		}
		return nil
	case protocol.PlayerGearSnapshot:
		if pp, ok := e.puppet(p.ClientID); ok {
			pp.SetGear(p.Gear)
		}
		return nil
	case protocol.PhysicsFullSnapshot:
		res, err := e.rec.ApplyFull(ctx, p)
		e.logSnapshot(p.Kind(), p.LastClientTickNumber, res)
		return err
	case protocol.PhysicsDeltaSnapshot:
		res, err := e.rec.ApplyDelta(ctx, p)
		e.logSnapshot(p.Kind(), p.LastClientTickNumber, res)
		return err
	case protocol.PhysicsGrantObjectControl:
		e.leases.Grant(p.EntityID, p.ExpiryTick)
		return nil
	case protocol.PhysicsRevokeObjectControl:
		e.leases.Revoke(p.EntityID)
		return nil
	case protocol.UpdateSyncedValue:
		e.synced.set(p.Key, p.Value)
		return nil
	case protocol.CustomMessage:
		if n := e.channels.publish(p); n == 0 {
			e.log.Debug("custom message without listeners", "channel", p.Channel)
		}
		return nil
	case protocol.SpawnEntity:
		return e.onSpawnEntity(ctx, p)
	case protocol.DestroyEntity:
		if ent := e.world.Lookup(p.EntityID); ent != nil {
			return e.world.Destroy(ctx, ent)
		}
		return nil
	case protocol.TransformChanged:
		if ent := e.world.Lookup(p.EntityID); ent != nil {
			ent.SetTransform(p.Transform)
		}
		return nil
	case protocol.ArgsChanged:
		if ent := e.world.Lookup(p.EntityID); ent != nil {
			ent.SetArgs(p.Args)
		}
		return nil
	case protocol.PhysicsSuspendResume:
		if ent := e.world.Lookup(p.EntityID); ent != nil {
			ent.SetSuspended(p.Suspended)
		}
		return nil
	default:
		e.log.Warn("unhandled packet kind", "kind", pkt.Kind())
		return nil
	}
}

func (e *Engine) onHandshake(hs protocol.Handshake) error {
	first := false
	e.readyOnce.Do(func() { first = true })
	if !first {
		e.log.Warn("duplicate handshake ignored", "client_id", hs.ClientID)
		return nil
	}
	if err := e.script.Ready(hs.ClientID); err != nil {
		e.log.Error("world script on_ready failed", "script", e.script.Name(), "error", err)
	}
	close(e.ready)
	e.log.Info("session ready", "client_id", hs.ClientID, "server_tick", hs.ServerTick, "world_script", hs.WorldScript)
	return nil
}

func playerUID(typ, clientID string) string {
	return typ + ":" + clientID
}

func (e *Engine) onSpawnPlayer(ctx context.Context, p protocol.SpawnPlayer) error {
	self := p.ClientID == e.SelfID()
	typ := world.TypeNetPlayer
	if self {
		typ = world.TypeLocalPlayer
	}
	uid := playerUID(typ, p.ClientID)
	if e.world.Lookup(uid) != nil {
		e.log.Debug("player already spawned", "client_id", p.ClientID)
		return nil
	}
	def := protocol.EntityDef{
		UID:  uid,
		Type: typ,
		Args: map[string]any{"client_id": p.ClientID, "name": p.Name},
		Transform: protocol.Transform{
			Position: p.Position,
			Scale:    protocol.Vec2{1, 1},
		},
	}
	ent, err := e.world.Spawn(ctx, def)
	if err != nil {
		return fmt.Errorf("spawn player %s: %w", p.ClientID, err)
	}
	if ent == nil {
		e.log.Debug("player spawn declined", "client_id", p.ClientID)
		return nil
	}

	if self {
		e.mu.Lock()
		e.local = ent
		e.mu.Unlock()
		return nil
	}
	if pp, ok := ent.(world.Puppet); ok && len(p.Gear) > 0 {
		pp.SetGear(p.Gear)
	}
	e.mu.Lock()
	e.players[p.ClientID] = ent
	e.mu.Unlock()
	return nil
}

func (e *Engine) onDespawnPlayer(ctx context.Context, p protocol.DespawnPlayer) error {
	e.mu.Lock()
	ent, ok := e.players[p.ClientID]
	delete(e.players, p.ClientID)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.world.Destroy(ctx, ent)
}

// puppet finds the remote player driven by clientID. The local player is
// never a puppet.
func (e *Engine) puppet(clientID string) (world.Puppet, bool) {
	if clientID == e.SelfID() {
		return nil, false
	}
	ent, ok := e.Player(clientID)
	if !ok {
		return nil, false
	}
	pp, ok := ent.(world.Puppet)
	return pp, ok
}

func (e *Engine) onSpawnEntity(ctx context.Context, p protocol.SpawnEntity) error {
	if p.Definition.UID != "" && e.world.Lookup(p.Definition.UID) != nil {
		return nil
	}
	ent, err := e.world.Spawn(ctx, p.Definition)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", p.Definition.Type, err)
	}
	if ent == nil {
		e.log.Debug("entity spawn declined", "type", p.Definition.Type)
	}
	return nil
}

func (e *Engine) logSnapshot(kind protocol.Kind, last int64, res reconcile.Result) {
	e.log.Debug("snapshot applied",
		"kind", kind,
		"last_client_tick", last,
		"tick", e.clock.Now(),
		"touched", len(res.Touched),
		"skipped", len(res.Skipped),
		"destroyed", len(res.Destroyed),
		"replayed", res.Replayed,
	)
}
