package protocol

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/protocol.schema.json
var protocolSchema []byte

const schemaURL = "https://worldsync.gg/schemas/protocol.schema.json"

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
	schemasErr  error
)

// allKinds lists every tag with a definition in the embedded schema.
var allKinds = []Kind{
	KindHandshake, KindDisconnecting, KindSpawnPlayer, KindDespawnPlayer,
	KindPlayerMotionSnapshot, KindPlayerAnimationSnapshot, KindPlayerGearSnapshot,
	KindPhysicsFullSnapshot, KindPhysicsDeltaSnapshot,
	KindPhysicsGrantObjectControl, KindPhysicsRevokeObjectControl, KindUpdateSyncedValue,
	KindCustomMessage, KindSpawnEntity, KindDestroyEntity, KindTransformChanged,
	KindArgsChanged, KindPhysicsSuspendResume,
	KindHandshakeReady, KindPlayerMotion, KindPlayerInputs, KindPlayerAnimationChange,
	KindPlayerGearChange, KindPhysicsRequestObjectControl,
	KindPhysicsControlledObjectsSnapshot, KindRequestFullSnapshot,
}

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(protocolSchema)); err != nil {
		return nil, fmt.Errorf("add protocol schema: %w", err)
	}
	out := make(map[Kind]*jsonschema.Schema, len(allKinds))
	for _, k := range allKinds {
		// Each tag gets a tiny wrapper resource pointing into $defs.
		url := strings.TrimSuffix(schemaURL, "protocol.schema.json") + "kinds/" + string(k) + ".json"
		wrapper := fmt.Sprintf(`{"$ref": %q}`, schemaURL+"#/$defs/"+string(k))
		if err := c.AddResource(url, strings.NewReader(wrapper)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", k, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func loadSchemas() (map[Kind]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas, schemasErr = compileSchemas()
	})
	return schemas, schemasErr
}

// Schema returns the compiled schema for a tag, or nil if the tag is unknown.
func Schema(k Kind) *jsonschema.Schema {
	m, err := loadSchemas()
	if err != nil {
		return nil
	}
	return m[k]
}

// Validate checks a generic JSON document (as produced by json.Unmarshal into
// an `any`) against the schema for k.
func Validate(k Kind, doc any) error {
	m, err := loadSchemas()
	if err != nil {
		return err
	}
	s := m[k]
	if s == nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return s.Validate(doc)
}
