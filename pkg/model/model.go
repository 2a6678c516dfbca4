// Package model defines the document row payloads shared between the
// Document Session, Identity Domain, and Post Domain: Identity,
// Portrait, Status, Post, and NamedBlob. Every payload
// is encoded as compact, schema-less, self-describing binary via CBOR, so
// new optional fields can be added without breaking older readers.
package model

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nearbymesh/nearby/pkg/identifiers"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("model: build canonical cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("model: build cbor decoder: %v", err))
	}
}

// Identity is one author's document-visible identity row.
type Identity struct {
	PK   identifiers.WideId `cbor:"pk"`
	Name string             `cbor:"name"`
}

// Portrait is a per-author profile-picture pointer: a blob hash plus its
// byte length.
type Portrait struct {
	Hash identifiers.WideId `cbor:"hash"`
	Size uint64             `cbor:"size"`
}

// Status is a one-line per-author status row.
type Status struct {
	Text string `cbor:"text"`
}

// Post is a message row. CreatedAt is UTC unix nanoseconds,
// monotonic per author.
type Post struct {
	PK        identifiers.WideId  `cbor:"pk"`
	CreatedAt int64               `cbor:"created_at"`
	Title     string              `cbor:"title,omitempty"`
	Body      string              `cbor:"body,omitempty"`
	Payload   *identifiers.WideId `cbor:"payload,omitempty"`
}

// NamedBlob is one entry of a Collection.
type NamedBlob struct {
	Name string             `cbor:"name"`
	Hash identifiers.WideId `cbor:"hash"`
}

// Marshal encodes v as canonical CBOR.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("model: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes CBOR bytes into v.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("model: unmarshal: %w", err)
	}
	return nil
}
