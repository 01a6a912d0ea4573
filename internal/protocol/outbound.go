package protocol

import "encoding/json"

// Outbound is implemented by every packet the client may send. Construct
// values with the New* builders so the tag and tick are always present.
type Outbound interface {
	Kind() Kind
	outbound()
}

type HandshakeReady struct {
	T               Kind `json:"t"`
	ProtocolVersion int  `json:"protocol_version"`
}

type PlayerMotion struct {
	T Kind `json:"t"`
	Motion
}

type PlayerInputs struct {
	T    Kind  `json:"t"`
	Tick int64 `json:"tick"`
	Inputs
}

type PlayerAnimationChange struct {
	T         Kind   `json:"t"`
	Animation string `json:"animation"`
}

type PlayerGearChange struct {
	T    Kind `json:"t"`
	Gear Gear `json:"gear"`
}

type PhysicsRequestObjectControl struct {
	T        Kind   `json:"t"`
	EntityID string `json:"entity_id"`
}

// PhysicsControlledObjectsSnapshot reports the bodies of every entity this
// client currently simulates.
type PhysicsControlledObjectsSnapshot struct {
	T        Kind                   `json:"t"`
	Tick     int64                  `json:"tick"`
	Entities map[string][]BodyState `json:"entities"`
}

type RequestFullSnapshot struct {
	T Kind `json:"t"`
}

func (HandshakeReady) Kind() Kind                   { return KindHandshakeReady }
func (PlayerMotion) Kind() Kind                     { return KindPlayerMotion }
func (PlayerInputs) Kind() Kind                     { return KindPlayerInputs }
func (PlayerAnimationChange) Kind() Kind            { return KindPlayerAnimationChange }
func (PlayerGearChange) Kind() Kind                 { return KindPlayerGearChange }
func (PhysicsRequestObjectControl) Kind() Kind      { return KindPhysicsRequestObjectControl }
func (PhysicsControlledObjectsSnapshot) Kind() Kind { return KindPhysicsControlledObjectsSnapshot }
func (RequestFullSnapshot) Kind() Kind              { return KindRequestFullSnapshot }

func (HandshakeReady) outbound()                   {}
func (PlayerMotion) outbound()                     {}
func (PlayerInputs) outbound()                     {}
func (PlayerAnimationChange) outbound()            {}
func (PlayerGearChange) outbound()                 {}
func (PhysicsRequestObjectControl) outbound()      {}
func (PhysicsControlledObjectsSnapshot) outbound() {}
func (RequestFullSnapshot) outbound()              {}

// NewHandshakeReady acknowledges a handshake, announcing the protocol
// revision the client speaks.
func NewHandshakeReady(version int) HandshakeReady {
	return HandshakeReady{T: KindHandshakeReady, ProtocolVersion: version}
}

func NewPlayerMotion(tick int64, pos, vel Vec2, flipped bool) PlayerMotion {
	return PlayerMotion{T: KindPlayerMotion, Motion: Motion{Tick: tick, Position: pos, Velocity: vel, Flipped: flipped}}
}

func NewPlayerInputs(tick int64, in Inputs) PlayerInputs {
	return PlayerInputs{T: KindPlayerInputs, Tick: tick, Inputs: in}
}

func NewPlayerAnimationChange(animation string) PlayerAnimationChange {
	return PlayerAnimationChange{T: KindPlayerAnimationChange, Animation: animation}
}

func NewPlayerGearChange(g Gear) PlayerGearChange {
	return PlayerGearChange{T: KindPlayerGearChange, Gear: g.StripVisuals()}
}

func NewCustomMessage(channel string, data map[string]any) CustomMessage {
	if data == nil {
		data = map[string]any{}
	}
	return CustomMessage{T: KindCustomMessage, Channel: channel, Data: data}
}

func NewSpawnEntity(def EntityDef) SpawnEntity {
	return SpawnEntity{T: KindSpawnEntity, Definition: def}
}

func NewDestroyEntity(entityID string) DestroyEntity {
	return DestroyEntity{T: KindDestroyEntity, EntityID: entityID}
}

func NewTransformChanged(entityID string, tr Transform) TransformChanged {
	return TransformChanged{T: KindTransformChanged, EntityID: entityID, Transform: tr}
}

func NewArgsChanged(entityID string, args map[string]any) ArgsChanged {
	if args == nil {
		args = map[string]any{}
	}
	return ArgsChanged{T: KindArgsChanged, EntityID: entityID, Args: args}
}

func NewPhysicsSuspendResume(entityID string, suspended bool) PhysicsSuspendResume {
	return PhysicsSuspendResume{T: KindPhysicsSuspendResume, EntityID: entityID, Suspended: suspended}
}

func NewPhysicsRequestObjectControl(entityID string) PhysicsRequestObjectControl {
	return PhysicsRequestObjectControl{T: KindPhysicsRequestObjectControl, EntityID: entityID}
}

func NewPhysicsControlledObjectsSnapshot(tick int64, entities map[string][]BodyState) PhysicsControlledObjectsSnapshot {
	return PhysicsControlledObjectsSnapshot{T: KindPhysicsControlledObjectsSnapshot, Tick: tick, Entities: entities}
}

func NewRequestFullSnapshot() RequestFullSnapshot {
	return RequestFullSnapshot{T: KindRequestFullSnapshot}
}

// Encode serializes an outbound packet.
func Encode(p Outbound) ([]byte, error) {
	return json.Marshal(p)
}
