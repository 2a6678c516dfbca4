package docstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nearbymesh/nearby/pkg/identifiers"
)

// NewMemoryNode builds an in-memory Node for tests and for callers with no
// real replication substrate wired in yet. Documents created by one
// MemoryNode are only importable by another MemoryNode sharing the same
// *memoryWorld (see NewLinkedMemoryNodes).
func NewMemoryNode() Node {
	return &memoryNode{world: newMemoryWorld(), blobs: newMemoryBlobStore()}
}

// NewLinkedMemoryNodes returns n Node instances that share one in-memory
// "network": tickets minted by one are importable by any other, and blob
// content is visible across all of them. This is the harness used to
// exercise multi-node rendezvous/session scenarios without
// a real transport.
func NewLinkedMemoryNodes(n int) []Node {
	world := newMemoryWorld()
	blobs := newMemoryBlobStore()
	out := make([]Node, n)
	for i := range out {
		out[i] = &memoryNode{world: world, blobs: blobs}
	}
	return out
}

type memoryNode struct {
	world *memoryWorld
	blobs *memoryBlobStore
}

func (n *memoryNode) Docs() DocStore { return &memoryDocStore{world: n.world, blobs: n.blobs} }
func (n *memoryNode) Blobs() BlobStore { return n.blobs }

func (n *memoryNode) ConnectionInfo(_ context.Context, peer []byte) (ConnectionInfo, error) {
	return n.world.connectionInfo(peer), nil
}

// memoryWorld is the shared namespace registry standing in for a real
// replication transport: every document namespace that exists anywhere in
// the linked node set lives here.
type memoryWorld struct {
	mu   sync.Mutex
	docs map[identifiers.WideId]*memoryDoc
	conn map[string]ConnectionInfo
}

func newMemoryWorld() *memoryWorld {
	return &memoryWorld{
		docs: make(map[identifiers.WideId]*memoryDoc),
		conn: make(map[string]ConnectionInfo),
	}
}

func (w *memoryWorld) connectionInfo(peer []byte) ConnectionInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn[string(peer)]
}

func (w *memoryWorld) setConnectionInfo(peer []byte, info ConnectionInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn[string(peer)] = info
}

// SetConnectionInfo lets tests simulate sync-peer liveness for the
// Connection-State Loop, against a Node returned by NewMemoryNode or
// NewLinkedMemoryNodes. A no-op for any other Node implementation.
func SetConnectionInfo(node Node, peer []byte, info ConnectionInfo) {
	if n, ok := node.(*memoryNode); ok {
		n.world.setConnectionInfo(peer, info)
	}
}

// knownPeers lists every peer id this world has connection info for, for
// memoryDoc.GetSyncPeers. Sorted so repeated calls are stable.
func (w *memoryWorld) knownPeers() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.conn))
	for k := range w.conn {
		out = append(out, k)
	}
	sort.Strings(out)
	peers := make([][]byte, len(out))
	for i, k := range out {
		peers[i] = []byte(k)
	}
	return peers
}

type memoryDocStore struct {
	world *memoryWorld
	blobs *memoryBlobStore
}

func (s *memoryDocStore) Create(_ context.Context) (Doc, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("docstore: generate namespace: %w", err)
	}
	ns, _ := identifiers.FromBytes(seed[:])
	return s.world.register(ns, s.blobs), nil
}

func (s *memoryDocStore) Open(_ context.Context, ns Namespace) (Doc, error) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	d, ok := s.world.docs[ns]
	if !ok {
		return nil, fmt.Errorf("docstore: namespace %s not found", ns)
	}
	return d, nil
}

func (s *memoryDocStore) Import(ctx context.Context, t Ticket) (Doc, error) {
	ns, err := identifiers.FromBytes(t.Capability)
	if err != nil {
		return nil, fmt.Errorf("docstore: import ticket: %w", err)
	}
	return s.Open(ctx, ns)
}

func (w *memoryWorld) register(ns identifiers.WideId, blobs *memoryBlobStore) *memoryDoc {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.docs[ns]; ok {
		return d
	}
	d := &memoryDoc{
		ns:    ns,
		world: w,
		blobs: blobs,
		rows:  make(map[string]Entry),
		subs:  make(map[int]chan Event),
	}
	w.docs[ns] = d
	return d
}

type memoryDoc struct {
	ns    identifiers.WideId
	world *memoryWorld
	blobs *memoryBlobStore

	mu         sync.Mutex
	rows       map[string]Entry // key: author||0x00||key
	subs       map[int]chan Event
	nextSub    int
	syncStarts int // number of StartSync calls, for test assertions
}

func rowKey(author Author, key []byte) string {
	return author.String() + "\x00" + string(key)
}

func (d *memoryDoc) Namespace() Namespace { return d.ns }

func (d *memoryDoc) Share(_ context.Context, _ ShareMode, _ AddrOptions) (Ticket, error) {
	return Ticket{Capability: d.ns.Bytes(), Nodes: []byte("memory-node")}, nil
}

func (d *memoryDoc) Subscribe(ctx context.Context) (<-chan Event, error) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan Event, 64)
	d.subs[id] = ch
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (d *memoryDoc) GetExact(_ context.Context, author Author, key []byte) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.rows[rowKey(author, key)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (d *memoryDoc) GetOne(_ context.Context, key []byte) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var best *Entry
	for _, e := range d.rows {
		if string(e.Key) != string(key) {
			continue
		}
		if best == nil || e.Timestamp > best.Timestamp {
			cp := e
			best = &cp
		}
	}
	return best, nil
}

func (d *memoryDoc) GetMany(_ context.Context, q Query) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	for _, e := range d.rows {
		match := false
		if q.PrefixOf {
			match = len(e.Key) >= len(q.Key) && string(e.Key[:len(q.Key)]) == string(q.Key)
		} else {
			match = string(e.Key) == string(q.Key)
		}
		if match {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if string(out[i].Key) != string(out[j].Key) {
			return string(out[i].Key) < string(out[j].Key)
		}
		return out[i].Author.Compare(out[j].Author) < 0
	})
	return out, nil
}

func (d *memoryDoc) SetHash(_ context.Context, author Author, key []byte, hash BlobHash, size uint64) error {
	d.mu.Lock()
	e := Entry{Author: author, Key: append([]byte(nil), key...), Hash: hash, Size: size, Timestamp: monotonicNow()}
	d.rows[rowKey(author, key)] = e
	subs := make([]chan Event, 0, len(d.subs))
	for _, ch := range d.subs {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	evt := Event{Insert: &InsertEvent{
		Origin:        OriginLocal,
		Author:        author,
		Entry:         e,
		ContentStatus: ContentComplete,
	}}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func (d *memoryDoc) Del(_ context.Context, author Author, key []byte) error {
	d.mu.Lock()
	delete(d.rows, rowKey(author, key))
	d.mu.Unlock()
	return nil
}

func (d *memoryDoc) GetSyncPeers(_ context.Context) ([][]byte, error) {
	return d.world.knownPeers(), nil
}

// StartSync records the call; the in-memory reference substrate has no
// connection to restart, so there is nothing else to do.
func (d *memoryDoc) StartSync(_ context.Context) error {
	d.mu.Lock()
	d.syncStarts++
	d.mu.Unlock()
	return nil
}

// SyncStarts reports how many times StartSync has been called, for tests.
func (d *memoryDoc) SyncStarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncStarts
}

// SyncAttempts reports how many times StartSync has been called against
// doc, for tests asserting that a Connected -> Reconnecting transition
// actually asks the substrate to resync. Returns 0 for a Doc that does
// not track this (any real, non-in-memory substrate).
func SyncAttempts(doc Doc) int {
	if d, ok := doc.(interface{ SyncStarts() int }); ok {
		return d.SyncStarts()
	}
	return 0
}

func (d *memoryDoc) Close() error { return nil }

// ReplicateFrom copies a row from src into dst as a remote insert,
// simulating another author's write arriving over the wire. Used by
// multi-node test harnesses; content is delivered complete immediately
// since the in-memory blob store is globally shared.
func ReplicateFrom(ctx context.Context, dst Doc, src Doc, author Author, key []byte) error {
	e, err := dst_getExact(ctx, src, author, key)
	if err != nil || e == nil {
		return err
	}
	md, ok := dst.(*memoryDoc)
	if !ok {
		return fmt.Errorf("docstore: ReplicateFrom requires a memory Doc")
	}
	md.mu.Lock()
	md.rows[rowKey(author, key)] = *e
	subs := make([]chan Event, 0, len(md.subs))
	for _, ch := range md.subs {
		subs = append(subs, ch)
	}
	md.mu.Unlock()

	evt := Event{Insert: &InsertEvent{
		Origin:        OriginRemote,
		Author:        author,
		Entry:         *e,
		ContentStatus: ContentComplete,
	}}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

func dst_getExact(ctx context.Context, d Doc, author Author, key []byte) (*Entry, error) {
	return d.GetExact(ctx, author, key)
}

var monoCounter int64

func monotonicNow() int64 {
	monoCounter++
	return monoCounter
}

// memoryBlobStore is a trivial content-addressed byte store.
type memoryBlobStore struct {
	mu         sync.Mutex
	data       map[identifiers.WideId][]byte
	collection map[identifiers.WideId][]NamedBlob
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{
		data:       make(map[identifiers.WideId][]byte),
		collection: make(map[identifiers.WideId][]NamedBlob),
	}
}

func (b *memoryBlobStore) AddBytes(_ context.Context, data []byte) (BlobRef, error) {
	hash := identifiers.Derive(data)
	b.mu.Lock()
	b.data[hash] = append([]byte(nil), data...)
	b.mu.Unlock()
	return BlobRef{Hash: hash, Size: uint64(len(data))}, nil
}

func (b *memoryBlobStore) Read(ctx context.Context, hash BlobHash) (io.ReadCloser, error) {
	data, err := b.ReadToBytes(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &byteReadCloser{data: data}, nil
}

func (b *memoryBlobStore) ReadToBytes(_ context.Context, hash BlobHash) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[hash]
	if !ok {
		return nil, fmt.Errorf("docstore: blob %s not found", hash)
	}
	return append([]byte(nil), data...), nil
}

func (b *memoryBlobStore) Status(_ context.Context, hash BlobHash) (BlobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[hash]
	if !ok {
		return BlobStatus{Kind: BlobNotFound}, nil
	}
	return BlobStatus{Kind: BlobComplete, Size: uint64(len(data))}, nil
}

func (b *memoryBlobStore) DownloadWithOpts(_ context.Context, hash BlobHash, _ [][]byte) error {
	b.mu.Lock()
	_, ok := b.data[hash]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("docstore: no peers hold blob %s", hash)
	}
	return nil
}

func (b *memoryBlobStore) CreateCollection(_ context.Context, items []NamedBlob) (BlobHash, error) {
	parts := make([][]byte, 0, len(items))
	for _, it := range items {
		parts = append(parts, []byte(it.Name), it.Hash.Bytes())
	}
	root := identifiers.Derive(parts...)
	b.mu.Lock()
	b.collection[root] = append([]NamedBlob(nil), items...)
	b.mu.Unlock()
	return root, nil
}

func (b *memoryBlobStore) GetCollection(_ context.Context, hash BlobHash) ([]NamedBlob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items, ok := b.collection[hash]
	if !ok {
		return nil, fmt.Errorf("docstore: collection %s not found", hash)
	}
	return append([]NamedBlob(nil), items...), nil
}

type byteReadCloser struct {
	data []byte
	pos  int
}

func (r *byteReadCloser) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *byteReadCloser) Close() error { return nil }
