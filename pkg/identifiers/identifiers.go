// Package identifiers defines the fixed-length content identifiers shared
// across the nearby-gossip core: WideId (authors, namespaces, content
// hashes) and the text encoding used to display them.
package identifiers

import (
	"bytes"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/zeebo/blake3"
)

// WideId is a 256-bit opaque identifier used for authors, namespaces, and
// content hashes. It is byte-for-byte comparable and rendered in
// a case-insensitive alphabet for display.
type WideId [32]byte

// Zero is the zero-value WideId, used as a sentinel "no id" marker.
var Zero WideId

// IsZero reports whether w is the all-zero identifier.
func (w WideId) IsZero() bool {
	return w == Zero
}

// Compare returns -1, 0, or 1 following byte-lexicographic order; the
// in-memory docstore orders rows by author with it.
func (w WideId) Compare(other WideId) int {
	return bytes.Compare(w[:], other[:])
}

// Bytes returns a copy of the raw 32-byte identifier.
func (w WideId) Bytes() []byte {
	b := make([]byte, len(w))
	copy(b, w[:])
	return b
}

// String renders the identifier using multibase's lowercase base32
// (RFC4648, no padding) — a self-describing, case-insensitive alphabet,
// the same text encoding IPFS-style CIDs use for display.
func (w WideId) String() string {
	s, err := multibase.Encode(multibase.Base32, w[:])
	if err != nil {
		// multibase.Base32 encoding of a fixed 32-byte slice cannot fail.
		panic(fmt.Sprintf("identifiers: unreachable encode failure: %v", err))
	}
	return s
}

// ParseWideId decodes a WideId previously produced by String.
func ParseWideId(s string) (WideId, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("identifiers: decode %q: %w", s, err)
	}
	if len(data) != 32 {
		return Zero, fmt.Errorf("identifiers: %q decodes to %d bytes, want 32", s, len(data))
	}
	var w WideId
	copy(w[:], data)
	return w, nil
}

// MarshalBinary implements encoding.BinaryMarshaler so serializers that
// recognize it (CBOR, gob) encode a WideId as a 32-byte string rather than
// an array of 32 numbers.
func (w WideId) MarshalBinary() ([]byte, error) {
	return w.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, the inverse of
// MarshalBinary.
func (w *WideId) UnmarshalBinary(data []byte) error {
	id, err := FromBytes(data)
	if err != nil {
		return err
	}
	*w = id
	return nil
}

// FromBytes copies exactly 32 bytes into a WideId.
func FromBytes(b []byte) (WideId, error) {
	if len(b) != 32 {
		return Zero, fmt.Errorf("identifiers: need 32 bytes, got %d", len(b))
	}
	var w WideId
	copy(w[:], b)
	return w, nil
}

// Derive hashes arbitrary content into a WideId using BLAKE3-256. Used for
// content hashes (blob payloads, collection roots) and for deriving
// deterministic namespace ids from a seed.
func Derive(parts ...[]byte) WideId {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // hash.Hash.Write never errors
	}
	var w WideId
	copy(w[:], h.Sum(nil))
	return w
}

// Random generates a WideId from a cryptographically random seed supplied
// by the caller (e.g. crypto/rand.Read into a 32-byte buffer, or a freshly
// generated author keypair's public key). Kept as a thin named conversion
// so call sites read as intent ("this is a random namespace") rather than
// a bare FromBytes.
func Random(seed []byte) (WideId, error) {
	return FromBytes(seed)
}
