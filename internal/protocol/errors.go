package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNotObject is returned for well-formed JSON that is not an object.
	ErrNotObject = errors.New("packet is not a JSON object")
	// ErrMissingKind is returned when the `t` discriminator is absent or empty.
	ErrMissingKind = errors.New("packet has no t discriminator")
	// ErrUnknownKind is returned for tags this client does not know.
	ErrUnknownKind = errors.New("unknown packet kind")
)

// ValidationError reports a document whose shape does not match the schema
// for its tag.
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s packet: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
