// Package codec converts structured values to and from bytes before they are
// encrypted or written to the keychain artifact.
package codec

import (
	"fmt"

	"howett.net/plist"
)

// Codec is an opaque byte-producing/consuming pair.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// Plist encodes values as property lists.
type Plist struct {
	Format int
}

// Default is the binary property list codec used for everything persisted.
var Default Codec = Plist{Format: plist.BinaryFormat}

func (p Plist) Marshal(v interface{}) ([]byte, error) {
	data, err := plist.Marshal(v, p.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property list: %w", err)
	}
	return data, nil
}

func (p Plist) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("failed to decode property list: empty input")
	}
	if _, err := plist.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode property list: %w", err)
	}
	return nil
}
