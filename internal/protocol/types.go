package protocol

import "github.com/go-gl/mathgl/mgl64"

// Vec2 is encoded as a [x, y] array.
type Vec2 = mgl64.Vec2

// BodyState is the kinematic state of one physics body.
type BodyState struct {
	Position        Vec2    `json:"position"`
	Velocity        Vec2    `json:"velocity"`
	AngularVelocity float64 `json:"angular_velocity"`
}

type Transform struct {
	Position Vec2    `json:"position"`
	Rotation float64 `json:"rotation"`
	Scale    Vec2    `json:"scale"`
}

// EntityDef describes how to construct an entity.
type EntityDef struct {
	UID       string         `json:"uid,omitempty"`
	Type      string         `json:"type"`
	Args      map[string]any `json:"args,omitempty"`
	Transform Transform      `json:"transform"`

	// Replicated entities exist on every client. Unless ServerAuthoritative
	// is set, nearby clients may request temporary control of them.
	Replicated          bool `json:"replicated,omitempty"`
	ServerAuthoritative bool `json:"server_authoritative,omitempty"`
}

// EntitySnapshot is one entity as seen by the server, bodies in index order.
type EntitySnapshot struct {
	EntityID   string      `json:"entity_id"`
	Definition EntityDef   `json:"definition"`
	Bodies     []BodyState `json:"bodies"`
}

type BodyUpdate struct {
	EntityID string      `json:"entity_id"`
	Bodies   []BodyState `json:"bodies"`
}

// Motion is the shared body of player_motion and player_motion_snapshot.
type Motion struct {
	Tick     int64 `json:"tick"`
	Position Vec2  `json:"position"`
	Velocity Vec2  `json:"velocity"`
	Flipped  bool  `json:"flipped"`
}

type Inputs struct {
	Jump        bool `json:"jump"`
	FallThrough bool `json:"fall_through"`
	Left        bool `json:"left"`
	Right       bool `json:"right"`
	Attack      bool `json:"attack"`
}

// GearPiece is one equipped item. Visual holds a renderer-side resource and
// never goes on the wire.
type GearPiece struct {
	ItemID  string `json:"item_id"`
	Variant string `json:"variant,omitempty"`
	Visual  any    `json:"-"`
}

// Gear maps a slot name to the piece equipped there.
type Gear map[string]GearPiece

// StripVisuals returns a copy of g without renderer resources.
func (g Gear) StripVisuals() Gear {
	if g == nil {
		return Gear{}
	}
	out := make(Gear, len(g))
	for slot, p := range g {
		p.Visual = nil
		out[slot] = p
	}
	return out
}
