// Package codec centralizes snapshot metadata encoding.
//
// Codec selection is a compatibility boundary: snapshots record the codec
// they were written with and are decoded with the same one on load.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Stable on-disk identifiers for the built-in codecs.
const (
	IDGoJSON  uint8 = 1
	IDMsgpack uint8 = 2
)

// Default is the codec used for new snapshots.
var Default Codec = GoJSON{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "json", "go-json":
		return GoJSON{}, true
	case "msgpack":
		return Msgpack{}, true
	default:
		return nil, false
	}
}

// ByID returns a built-in codec by its on-disk identifier.
func ByID(id uint8) (Codec, bool) {
	switch id {
	case IDGoJSON:
		return GoJSON{}, true
	case IDMsgpack:
		return Msgpack{}, true
	default:
		return nil, false
	}
}

// IDOf returns the on-disk identifier of a built-in codec.
func IDOf(c Codec) (uint8, error) {
	switch c.Name() {
	case "go-json":
		return IDGoJSON, nil
	case "msgpack":
		return IDMsgpack, nil
	default:
		return 0, fmt.Errorf("codec: %q has no on-disk identifier", c.Name())
	}
}

// MustMarshal is a helper for tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
