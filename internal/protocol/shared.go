package protocol

// Packets with the same shape in both directions.

// CustomMessage is gameplay pub/sub traffic. ClientID names the sender and is
// filled in by the server on relay.
type CustomMessage struct {
	T        Kind           `json:"t"`
	Channel  string         `json:"channel"`
	Data     map[string]any `json:"data"`
	ClientID string         `json:"client_id,omitempty"`
}

type SpawnEntity struct {
	T          Kind      `json:"t"`
	Definition EntityDef `json:"definition"`
}

type DestroyEntity struct {
	T        Kind   `json:"t"`
	EntityID string `json:"entity_id"`
}

type TransformChanged struct {
	T         Kind      `json:"t"`
	EntityID  string    `json:"entity_id"`
	Transform Transform `json:"transform"`
}

type ArgsChanged struct {
	T        Kind           `json:"t"`
	EntityID string         `json:"entity_id"`
	Args     map[string]any `json:"args"`
}

type PhysicsSuspendResume struct {
	T         Kind   `json:"t"`
	EntityID  string `json:"entity_id"`
	Suspended bool   `json:"suspended"`
}

func (CustomMessage) Kind() Kind        { return KindCustomMessage }
func (SpawnEntity) Kind() Kind          { return KindSpawnEntity }
func (DestroyEntity) Kind() Kind        { return KindDestroyEntity }
func (TransformChanged) Kind() Kind     { return KindTransformChanged }
func (ArgsChanged) Kind() Kind          { return KindArgsChanged }
func (PhysicsSuspendResume) Kind() Kind { return KindPhysicsSuspendResume }

func (CustomMessage) inbound()        {}
func (SpawnEntity) inbound()          {}
func (DestroyEntity) inbound()        {}
func (TransformChanged) inbound()     {}
func (ArgsChanged) inbound()          {}
func (PhysicsSuspendResume) inbound() {}

func (CustomMessage) outbound()        {}
func (SpawnEntity) outbound()          {}
func (DestroyEntity) outbound()        {}
func (TransformChanged) outbound()     {}
func (ArgsChanged) outbound()          {}
func (PhysicsSuspendResume) outbound() {}
