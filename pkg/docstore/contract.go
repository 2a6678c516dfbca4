// Package docstore defines the external replication-substrate contract:
// the document store, blob store, and author keypairs this core treats
// as an external collaborator. It does not define a wire protocol, only
// the Go interface a concrete backend must satisfy, plus an in-memory
// reference implementation used by tests and by callers who have no real
// substrate wired in yet.
package docstore

import (
	"context"
	"io"

	"github.com/nearbymesh/nearby/pkg/identifiers"
)

// Author, Namespace, and BlobHash are all WideId values: a
// single 256-bit identifier space shared across authors, document
// namespaces, and content hashes.
type (
	Author    = identifiers.WideId
	Namespace = identifiers.WideId
	BlobHash  = identifiers.WideId
)

// ShareMode controls whether a ticket grants read-only or read-write
// access when importing a document.
type ShareMode uint8

const (
	ShareRead  ShareMode = iota // read-only
	ShareWrite                  // read-write
)

// AddrOptions controls which reachability hints are embedded in a ticket.
type AddrOptions uint8

const (
	AddrRelayAndDirect AddrOptions = iota
	AddrRelayOnly
)

// Ticket is the capability returned by Doc.Share and consumed by
// Node.Docs().Import: opaque capability bytes plus an opaque address-hint
// blob.
type Ticket struct {
	Capability []byte
	Nodes      []byte
}

// ContentStatus reports whether a remote insert's content bytes have
// already been transferred.
type ContentStatus uint8

const (
	ContentComplete ContentStatus = iota
	ContentMissing
)

// Origin distinguishes a locally authored insert from one replicated from
// a remote author.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginRemote
)

// Entry is one row of the document: a (author, key) pair with its current
// content address, size, and timestamp.
type Entry struct {
	Author    Author
	Key       []byte
	Hash      BlobHash
	Size      uint64
	Timestamp int64 // unix nanos
}

// InsertEvent is emitted by Doc.Subscribe for every row insertion, tagged
// with its origin and, for remote inserts, whether the content bytes have
// already arrived.
type InsertEvent struct {
	Origin        Origin
	Author        Author // set for OriginRemote
	Entry         Entry
	ContentStatus ContentStatus
}

// ContentReadyEvent is emitted once a previously-incomplete remote
// insert's content bytes finish transferring.
type ContentReadyEvent struct {
	Hash BlobHash
}

// Event is the union of events a Doc subscription can emit. Exactly one
// of Insert or ContentReady is non-nil.
type Event struct {
	Insert       *InsertEvent
	ContentReady *ContentReadyEvent
}

// Query selects entries by exact key or key prefix.
type Query struct {
	Key      []byte // exact match when PrefixOf is false
	PrefixOf bool   // treat Key as a prefix match
}

// Doc is a single replicated, multi-author, authenticated document.
type Doc interface {
	Namespace() Namespace
	Share(ctx context.Context, mode ShareMode, opts AddrOptions) (Ticket, error)
	Subscribe(ctx context.Context) (<-chan Event, error)
	GetExact(ctx context.Context, author Author, key []byte) (*Entry, error)
	GetOne(ctx context.Context, key []byte) (*Entry, error)
	GetMany(ctx context.Context, q Query) ([]Entry, error)
	SetHash(ctx context.Context, author Author, key []byte, hash BlobHash, size uint64) error
	Del(ctx context.Context, author Author, key []byte) error
	// GetSyncPeers returns opaque peer identifiers currently syncing this
	// document, or nil if the substrate cannot report this.
	GetSyncPeers(ctx context.Context) ([][]byte, error)
	// StartSync asks the substrate to (re-)establish sync with whatever
	// peers it currently knows about, rather than waiting on its own
	// retry timer. Called after a Connected -> Reconnecting transition.
	StartSync(ctx context.Context) error
	Close() error
}

// DocStore creates, opens, and imports documents.
type DocStore interface {
	Create(ctx context.Context) (Doc, error)
	Open(ctx context.Context, ns Namespace) (Doc, error)
	Import(ctx context.Context, t Ticket) (Doc, error)
}

// BlobStatusKind reports a blob's local availability.
type BlobStatusKind uint8

const (
	BlobComplete BlobStatusKind = iota
	BlobPartial
	BlobNotFound
)

// BlobStatus is the result of BlobStore.Status.
type BlobStatus struct {
	Kind BlobStatusKind
	Size uint64 // meaningful for Complete and Partial
}

// NamedBlob is one entry of a Collection.
type NamedBlob struct {
	Name string
	Hash BlobHash
}

// BlobRef is the result of adding bytes to the blob store.
type BlobRef struct {
	Hash BlobHash
	Size uint64
}

// BlobStore resolves content-addressed blobs to bytes and back.
type BlobStore interface {
	AddBytes(ctx context.Context, data []byte) (BlobRef, error)
	Read(ctx context.Context, hash BlobHash) (io.ReadCloser, error)
	ReadToBytes(ctx context.Context, hash BlobHash) ([]byte, error)
	Status(ctx context.Context, hash BlobHash) (BlobStatus, error)
	// DownloadWithOpts fetches a blob's bytes from the given peer hints,
	// surfacing them through subsequent Status/Read calls once complete.
	DownloadWithOpts(ctx context.Context, hash BlobHash, peers [][]byte) error
	CreateCollection(ctx context.Context, items []NamedBlob) (BlobHash, error)
	GetCollection(ctx context.Context, hash BlobHash) ([]NamedBlob, error)
}

// ConnectionInfo reports liveness for a sync peer.
type ConnectionInfo struct {
	LastReceived int64 // unix nanos of last received packet; 0 = unknown
	Known        bool
}

// Node is the full external collaborator surface this core depends on.
type Node interface {
	Docs() DocStore
	Blobs() BlobStore
	ConnectionInfo(ctx context.Context, peer []byte) (ConnectionInfo, error)
}
