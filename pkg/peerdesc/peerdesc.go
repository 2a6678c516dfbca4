// Package peerdesc defines the radio-advertised peer descriptor
// shared between the Radio surface, the Rendezvous Selector, and the
// Nearby Service.
package peerdesc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// UUID is the transient peer key carried in radio advertisements, stable
// for one advertising session. Aliased directly onto google/uuid so the
// radio adapter can generate/parse without a conversion layer.
type UUID = uuid.UUID

// PeerState reports whether an advertised peer has already converged on a
// shared document (Settled) or is still searching (Scanning).
type PeerState uint8

const (
	// StateScanning means the peer has not yet found a group.
	StateScanning PeerState = 0
	// StateSettled means the peer has found a group (more than one
	// distinct identity present in its active document).
	StateSettled PeerState = 1
)

// String renders the peer state for logging.
func (s PeerState) String() string {
	if s == StateSettled {
		return "settled"
	}
	return "scanning"
}

// Descriptor is one peer's radio advertisement.
type Descriptor struct {
	UUID         UUID
	DocumentData []byte // opaque capability-token bytes for the peer's active document
	AddressData  []byte // opaque transport reachability hints for that document
	State        PeerState
}

// SameDocument reports whether two descriptors advertise the same
// document_data bytes.
func (d Descriptor) SameDocument(other Descriptor) bool {
	return bytes.Equal(d.DocumentData, other.DocumentData)
}

// Table is a snapshot of currently known radio-visible peers, keyed by
// their transient UUID. It is the input to the Rendezvous Selector.
type Table map[UUID]Descriptor

// Clone returns an independent copy of the table, so callers can evaluate
// the selector against a stable snapshot while the live table keeps
// mutating under a lock.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Settled returns the subset of descriptors with State == StateSettled.
func (t Table) Settled() []Descriptor {
	var out []Descriptor
	for _, d := range t {
		if d.State == StateSettled {
			out = append(out, d)
		}
	}
	return out
}

// Unsettled returns the subset of descriptors with State == StateScanning.
func (t Table) Unsettled() []Descriptor {
	var out []Descriptor
	for _, d := range t {
		if d.State == StateScanning {
			out = append(out, d)
		}
	}
	return out
}

// EncodeAddresses packs an ordered list of opaque address hints into a
// single address_data blob: a length-prefixed sequence each node can
// decode without a shared schema beyond "uvarint length, then bytes".
// This is the concrete format behind the otherwise-opaque address_data
// field — both ends are this codebase, so the wire shape is
// ours to pick.
func EncodeAddresses(addrs [][]byte) []byte {
	var buf []byte
	var lenBuf [binary.MaxVarintLen64]byte
	for _, a := range addrs {
		n := binary.PutUvarint(lenBuf[:], uint64(len(a)))
		buf = append(buf, lenBuf[:n]...)
		buf = append(buf, a...)
	}
	return buf
}

// DecodeAddresses is the inverse of EncodeAddresses.
func DecodeAddresses(data []byte) ([][]byte, error) {
	var out [][]byte
	for len(data) > 0 {
		n, read := binary.Uvarint(data)
		if read <= 0 {
			return nil, fmt.Errorf("peerdesc: malformed address_data: bad length varint")
		}
		data = data[read:]
		if uint64(len(data)) < n {
			return nil, fmt.Errorf("peerdesc: malformed address_data: short entry")
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out, nil
}
