// Package radio defines the Radio surface: the scanner and
// broadcaster this core treats as an external, process-wide singleton
// collaborator, plus a concrete mDNS/DNS-SD adapter for a real LAN.
package radio

import "github.com/nearbymesh/nearby/pkg/peerdesc"

// Delegate is invoked by the scanner for every discovered peer descriptor.
// Implementations must not block: the Nearby Service enqueues onto a
// bounded channel consumed by a dedicated task.
type Delegate func(uuid peerdesc.UUID, addressData, documentData []byte, peerState peerdesc.PeerState)

// Scanner discovers peers on the shared medium. Every method is
// idempotent and safe to call from any goroutine.
type Scanner interface {
	StartScanning()
	StopScanning()
	SetDelegate(d Delegate)
}

// Broadcaster advertises this node's own descriptor. Every
// setter is idempotent and safe to call from any goroutine.
type Broadcaster interface {
	Start()
	Stop()
	SetDocumentData(data []byte)
	SetAddressData(data []byte)
	SetPeerState(state peerdesc.PeerState)
}
