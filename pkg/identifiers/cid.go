package identifiers

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// blake3MulticodecName is the multicodec name used to look up BLAKE3's
// multihash code, rather than hardcoding the numeric value.
const blake3MulticodecName = "blake3"

// BlobCID renders a content hash as a CIDv1 (raw codec, BLAKE3 multihash),
// the same identifier shape any CID-speaking blob store already trades in.
// Intended for BlobHash values; Author and Namespace ids keep using
// WideId.String() since they are not content addresses.
func BlobCID(hash WideId) (cid.Cid, error) {
	code, ok := multihash.Names[blake3MulticodecName]
	if !ok {
		return cid.Undef, fmt.Errorf("identifiers: %q not registered in go-multihash", blake3MulticodecName)
	}
	mh, err := multihash.Encode(hash.Bytes(), code)
	if err != nil {
		return cid.Undef, fmt.Errorf("identifiers: encode blake3 multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// ParseBlobCID is the inverse of BlobCID: it recovers the content hash from
// a CIDv1 string, rejecting anything that is not a 32-byte BLAKE3 digest
// under the raw codec.
func ParseBlobCID(s string) (WideId, error) {
	code, ok := multihash.Names[blake3MulticodecName]
	if !ok {
		return Zero, fmt.Errorf("identifiers: %q not registered in go-multihash", blake3MulticodecName)
	}

	c, err := cid.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("identifiers: decode cid %q: %w", s, err)
	}
	if c.Type() != cid.Raw {
		return Zero, fmt.Errorf("identifiers: cid %q uses codec %d, want raw", s, c.Type())
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return Zero, fmt.Errorf("identifiers: decode multihash: %w", err)
	}
	if decoded.Code != code {
		return Zero, fmt.Errorf("identifiers: cid %q is not a blake3 digest", s)
	}
	return FromBytes(decoded.Digest)
}
