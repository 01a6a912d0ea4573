package protocol

import "encoding/json"

// Version is the protocol revision this client speaks. The server announces
// its own revision in the handshake.
const Version = 7

// Kind is the value of the `t` discriminator carried by every packet.
type Kind string

// Inbound kinds (server -> client).
const (
	KindHandshake                  Kind = "handshake"
	KindDisconnecting              Kind = "disconnecting"
	KindSpawnPlayer                Kind = "spawn_player"
	KindDespawnPlayer              Kind = "despawn_player"
	KindPlayerMotionSnapshot       Kind = "player_motion_snapshot"
	KindPlayerAnimationSnapshot    Kind = "player_animation_snapshot"
	KindPlayerGearSnapshot         Kind = "player_gear_snapshot"
	KindPhysicsFullSnapshot        Kind = "physics_full_snapshot"
	KindPhysicsDeltaSnapshot       Kind = "physics_delta_snapshot"
	KindPhysicsGrantObjectControl  Kind = "physics_grant_object_control"
	KindPhysicsRevokeObjectControl Kind = "physics_revoke_object_control"
	KindUpdateSyncedValue          Kind = "update_synced_value"
)

// Kinds shared by both directions.
const (
	KindCustomMessage        Kind = "custom_message"
	KindSpawnEntity          Kind = "spawn_entity"
	KindDestroyEntity        Kind = "destroy_entity"
	KindTransformChanged     Kind = "transform_changed"
	KindArgsChanged          Kind = "args_changed"
	KindPhysicsSuspendResume Kind = "physics_suspend_resume"
)

// Outbound kinds (client -> server).
const (
	KindHandshakeReady                   Kind = "handshake_ready"
	KindPlayerMotion                     Kind = "player_motion"
	KindPlayerInputs                     Kind = "player_inputs"
	KindPlayerAnimationChange            Kind = "player_animation_change"
	KindPlayerGearChange                 Kind = "player_gear_change"
	KindPhysicsRequestObjectControl      Kind = "physics_request_object_control"
	KindPhysicsControlledObjectsSnapshot Kind = "physics_controlled_objects_snapshot"
	KindRequestFullSnapshot              Kind = "request_full_snapshot"
)

// UnknownTick is sent by the server in last_client_tick_number when it has
// not yet observed any client tick.
const UnknownTick int64 = -1

// BaseMessage lets us route raw JSON by its tag before full decoding.
type BaseMessage struct {
	T Kind `json:"t"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
