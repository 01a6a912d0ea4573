package protocol

// Inbound is implemented by every packet the server may send. The set is
// closed: only this package can add members.
type Inbound interface {
	Kind() Kind
	inbound()
}

// Handshake opens the session and assigns the client its identifier.
type Handshake struct {
	T               Kind   `json:"t"`
	ProtocolVersion int    `json:"protocol_version"`
	ClientID        string `json:"client_id"`
	WorldScript     string `json:"world_script,omitempty"`
	ServerTick      int64  `json:"server_tick,omitempty"`
}

type Disconnecting struct {
	T      Kind   `json:"t"`
	Reason string `json:"reason,omitempty"`
}

type SpawnPlayer struct {
	T        Kind   `json:"t"`
	ClientID string `json:"client_id"`
	Name     string `json:"name,omitempty"`
	Position Vec2   `json:"position"`
	Gear     Gear   `json:"gear,omitempty"`
}

type DespawnPlayer struct {
	T        Kind   `json:"t"`
	ClientID string `json:"client_id"`
}

type PlayerMotionSnapshot struct {
	T        Kind   `json:"t"`
	ClientID string `json:"client_id"`
	Motion
}

type PlayerAnimationSnapshot struct {
	T         Kind   `json:"t"`
	ClientID  string `json:"client_id"`
	Animation string `json:"animation"`
}

type PlayerGearSnapshot struct {
	T        Kind   `json:"t"`
	ClientID string `json:"client_id"`
	Gear     Gear   `json:"gear"`
}

// PhysicsFullSnapshot carries every entity the server considers relevant.
// LastClientTickNumber is the newest client tick the server had seen when it
// built the snapshot, or UnknownTick.
type PhysicsFullSnapshot struct {
	T                    Kind             `json:"t"`
	LastClientTickNumber int64            `json:"last_client_tick_number"`
	Entities             []EntitySnapshot `json:"entities"`
}

type PhysicsDeltaSnapshot struct {
	T                    Kind             `json:"t"`
	LastClientTickNumber int64            `json:"last_client_tick_number"`
	NewEntities          []EntitySnapshot `json:"new_entities,omitempty"`
	BodyUpdates          []BodyUpdate     `json:"body_updates,omitempty"`
	DestroyedEntities    []string         `json:"destroyed_entities,omitempty"`
}

type PhysicsGrantObjectControl struct {
	T          Kind   `json:"t"`
	EntityID   string `json:"entity_id"`
	ExpiryTick int64  `json:"expiry_tick"`
}

type PhysicsRevokeObjectControl struct {
	T        Kind   `json:"t"`
	EntityID string `json:"entity_id"`
}

type UpdateSyncedValue struct {
	T     Kind   `json:"t"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (Handshake) Kind() Kind                  { return KindHandshake }
func (Disconnecting) Kind() Kind              { return KindDisconnecting }
func (SpawnPlayer) Kind() Kind                { return KindSpawnPlayer }
func (DespawnPlayer) Kind() Kind              { return KindDespawnPlayer }
func (PlayerMotionSnapshot) Kind() Kind       { return KindPlayerMotionSnapshot }
func (PlayerAnimationSnapshot) Kind() Kind    { return KindPlayerAnimationSnapshot }
func (PlayerGearSnapshot) Kind() Kind         { return KindPlayerGearSnapshot }
func (PhysicsFullSnapshot) Kind() Kind        { return KindPhysicsFullSnapshot }
func (PhysicsDeltaSnapshot) Kind() Kind       { return KindPhysicsDeltaSnapshot }
func (PhysicsGrantObjectControl) Kind() Kind  { return KindPhysicsGrantObjectControl }
func (PhysicsRevokeObjectControl) Kind() Kind { return KindPhysicsRevokeObjectControl }
func (UpdateSyncedValue) Kind() Kind          { return KindUpdateSyncedValue }

func (Handshake) inbound()                  {}
func (Disconnecting) inbound()              {}
func (SpawnPlayer) inbound()                {}
func (DespawnPlayer) inbound()              {}
func (PlayerMotionSnapshot) inbound()       {}
func (PlayerAnimationSnapshot) inbound()    {}
func (PlayerGearSnapshot) inbound()         {}
func (PhysicsFullSnapshot) inbound()        {}
func (PhysicsDeltaSnapshot) inbound()       {}
func (PhysicsGrantObjectControl) inbound()  {}
func (PhysicsRevokeObjectControl) inbound() {}
func (UpdateSyncedValue) inbound()          {}
