// Package world describes the simulation the sync engine drives. Rendering
// and the physics solver live behind these interfaces.
package world

import (
	"context"
	"time"

	"worldsync.gg/internal/protocol"
)

// Body is one physics primitive attached to an entity. Bodies have no network
// identity of their own; they are addressed by (entity UID, index).
type Body interface {
	Position() protocol.Vec2
	SetPosition(protocol.Vec2)
	Velocity() protocol.Vec2
	SetVelocity(protocol.Vec2)
	Angle() float64
	SetAngle(float64)
	AngularVelocity() float64
	SetAngularVelocity(float64)
}

// Entity is a uniquely identified simulated object.
type Entity interface {
	UID() string
	Definition() protocol.EntityDef
	SetTransform(protocol.Transform)
	SetArgs(map[string]any)
	Suspended() bool
	SetSuspended(bool)
}

// StepData accompanies a physics hook invocation.
type StepData struct {
	Tick int64
	Dt   float64
	// Replay is set when the step reconstructs a tick that already passed
	// locally (snapshot catch-up) rather than a live solver step.
	Replay bool
}

// PhysicsStepper is implemented by entities that want a per-step hook.
type PhysicsStepper interface {
	OnPhysicsStep(at time.Duration, step StepData)
}

// Puppet is a remote player driven purely by server snapshots.
type Puppet interface {
	Entity
	ClientID() string
	ApplyMotion(protocol.Motion)
	SetAnimation(string)
	SetGear(protocol.Gear)
}

// World is the collaborator contract consumed by the sync engine.
// Spawn, Destroy, Lookup and Bodies may be called from several goroutines at
// once while a snapshot is applied; each call concerns a different entity.
type World interface {
	// Spawn creates an entity. A nil Entity with a nil error means the world
	// declined to create it.
	Spawn(ctx context.Context, def protocol.EntityDef) (Entity, error)
	Destroy(ctx context.Context, e Entity) error
	Lookup(uid string) Entity
	Bodies(e Entity) []Body
	Entities() []Entity
}

// Entity types the engine spawns for players.
const (
	TypeLocalPlayer = "player"
	TypeNetPlayer   = "net_player"
)

// Integrate advances a body by dt seconds without any collision solving.
func Integrate(b Body, dt float64) {
	b.SetPosition(b.Position().Add(b.Velocity().Mul(dt)))
	b.SetAngle(b.Angle() + b.AngularVelocity()*dt)
}

// ApplyState overwrites a body's kinematics from a snapshot.
func ApplyState(b Body, s protocol.BodyState) {
	b.SetPosition(s.Position)
	b.SetVelocity(s.Velocity)
	b.SetAngularVelocity(s.AngularVelocity)
}

// CaptureState reads a body's kinematics for an outgoing snapshot.
func CaptureState(b Body) protocol.BodyState {
	return protocol.BodyState{
		Position:        b.Position(),
		Velocity:        b.Velocity(),
		AngularVelocity: b.AngularVelocity(),
	}
}

// Anchor returns the position of an entity's first body and whether it has
// one.
func Anchor(w World, e Entity) (protocol.Vec2, bool) {
	bodies := w.Bodies(e)
	if len(bodies) == 0 {
		return protocol.Vec2{}, false
	}
	return bodies[0].Position(), true
}
