// Package ticket provides a portable text encoding for a docstore.Ticket
//, so a capability can travel through a QR
// code, a paste buffer, or a log line. It carries no HMAC chain or caveat
// delegation — a docstore.Ticket is opaque capability bytes handed
// directly to an already-authenticated replication substrate, not a
// bearer token that gets attenuated hop to hop.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nearbymesh/nearby/pkg/docstore"
)

// wireTicket is the JSON shape written to the wire, adapted from the
// internal macaroon encoder's Encode/EncodeBase64 pair.
type wireTicket struct {
	Capability []byte `json:"capability"`
	Nodes      []byte `json:"nodes"`
}

// Encode serializes t to JSON bytes.
func Encode(t docstore.Ticket) ([]byte, error) {
	data, err := json.Marshal(wireTicket{Capability: t.Capability, Nodes: t.Nodes})
	if err != nil {
		return nil, fmt.Errorf("ticket: encode: %w", err)
	}
	return data, nil
}

// Decode parses JSON bytes produced by Encode.
func Decode(data []byte) (docstore.Ticket, error) {
	var w wireTicket
	if err := json.Unmarshal(data, &w); err != nil {
		return docstore.Ticket{}, fmt.Errorf("ticket: decode: %w", err)
	}
	return docstore.Ticket{Capability: w.Capability, Nodes: w.Nodes}, nil
}

// EncodeString serializes t to a URL-safe base64 string, suitable for a
// QR payload or a paste buffer.
func EncodeString(t docstore.Ticket) (string, error) {
	data, err := Encode(t)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeString is the inverse of EncodeString.
func DecodeString(s string) (docstore.Ticket, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return docstore.Ticket{}, fmt.Errorf("ticket: decode base64: %w", err)
	}
	return Decode(data)
}
