package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type decodeFn func([]byte) (Inbound, error)

func decodeAs[T Inbound](raw []byte) (Inbound, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var inboundDecoders = map[Kind]decodeFn{
	KindHandshake:                  decodeAs[Handshake],
	KindDisconnecting:              decodeAs[Disconnecting],
	KindSpawnPlayer:                decodeAs[SpawnPlayer],
	KindDespawnPlayer:              decodeAs[DespawnPlayer],
	KindPlayerMotionSnapshot:       decodeAs[PlayerMotionSnapshot],
	KindPlayerAnimationSnapshot:    decodeAs[PlayerAnimationSnapshot],
	KindPlayerGearSnapshot:         decodeAs[PlayerGearSnapshot],
	KindPhysicsFullSnapshot:        decodeAs[PhysicsFullSnapshot],
	KindPhysicsDeltaSnapshot:       decodeAs[PhysicsDeltaSnapshot],
	KindPhysicsGrantObjectControl:  decodeAs[PhysicsGrantObjectControl],
	KindPhysicsRevokeObjectControl: decodeAs[PhysicsRevokeObjectControl],
	KindUpdateSyncedValue:          decodeAs[UpdateSyncedValue],
	KindCustomMessage:              decodeAs[CustomMessage],
	KindSpawnEntity:                decodeAs[SpawnEntity],
	KindDestroyEntity:              decodeAs[DestroyEntity],
	KindTransformChanged:           decodeAs[TransformChanged],
	KindArgsChanged:                decodeAs[ArgsChanged],
	KindPhysicsSuspendResume:       decodeAs[PhysicsSuspendResume],
}

// InboundKinds returns every tag Decode accepts.
func InboundKinds() []Kind {
	out := make([]Kind, 0, len(inboundDecoders))
	for _, k := range allKinds {
		if _, ok := inboundDecoders[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Decode parses one server message: the tag is looked up, the document is
// validated against that tag's schema, then decoded into its typed packet.
func Decode(raw []byte) (Inbound, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse packet: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	tag, _ := obj["t"].(string)
	if tag == "" {
		return nil, ErrMissingKind
	}
	kind := Kind(tag)
	decode, ok := inboundDecoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
	if err := Validate(kind, doc); err != nil {
		return nil, &ValidationError{Kind: kind, Err: err}
	}
	p, err := decode(raw)
	if err != nil {
		return nil, &ValidationError{Kind: kind, Err: err}
	}
	return p, nil
}
