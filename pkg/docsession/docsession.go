// Package docsession implements the Document Session: the
// component that owns the currently active document handle, writes the
// local author's fixed-key rows, and republishes the raw replication
// stream downstream with completeness gating applied.
package docsession

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nearbymesh/nearby/pkg/blobcodec"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/model"
)

// Fixed document keys.
const (
	KeyIdentity       = "identity"
	KeyIDPic          = "id_pic"
	KeyStatus         = "status"
	KeyPublicBio      = "public_bio"
	MessagesPrefix    = "messages/"
	MessagePayloadsPrefix = "message_payloads/"
)

// ClassifyKey reports which handler a raw document key routes to. ok is
// false for any key outside the fixed set, which callers must ignore
// silently.
func ClassifyKey(key []byte) (handler string, ok bool) {
	s := string(key)
	switch s {
	case KeyIdentity, KeyIDPic, KeyStatus, KeyPublicBio:
		return s, true
	}
	switch {
	case strings.HasPrefix(s, MessagesPrefix):
		return MessagesPrefix, true
	case strings.HasPrefix(s, MessagePayloadsPrefix):
		return MessagePayloadsPrefix, true
	default:
		return "", false
	}
}

// InsertEntry is one entry released downstream, past completeness gating:
// a local or remote insert whose content bytes are confirmed present.
type InsertEntry struct {
	Origin docstore.Origin
	Author docstore.Author // meaningful when Origin == docstore.OriginRemote
	Entry  docstore.Entry
}

// Session owns the currently active document handle.
type Session struct {
	node   docstore.Node
	doc    docstore.Doc
	author docstore.Author
	codec  *blobcodec.Codec

	mu      sync.Mutex
	pending map[identifiers.WideId][]docstore.InsertEvent // buffered remote inserts, keyed by content hash

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open resolves priorNamespace if supplied and resolvable, otherwise
// creates a fresh document namespace.
func Open(ctx context.Context, node docstore.Node, author docstore.Author, priorNamespace *identifiers.WideId) (*Session, error) {
	var (
		doc docstore.Doc
		err error
	)
	if priorNamespace != nil {
		doc, err = node.Docs().Open(ctx, *priorNamespace)
	}
	if priorNamespace == nil || err != nil {
		doc, err = node.Docs().Create(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("docsession: open: %w", err)
	}
	codec, err := blobcodec.New()
	if err != nil {
		return nil, fmt.Errorf("docsession: open: %w", err)
	}
	return &Session{
		node:    node,
		doc:     doc,
		author:  author,
		codec:   codec,
		pending: make(map[identifiers.WideId][]docstore.InsertEvent),
	}, nil
}

// Join imports a document via a capability ticket produced by another
// peer's rendezvous result, rather than opening or creating one locally.
func Join(ctx context.Context, node docstore.Node, author docstore.Author, ticket docstore.Ticket) (*Session, error) {
	doc, err := node.Docs().Import(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("docsession: join: %w", err)
	}
	codec, err := blobcodec.New()
	if err != nil {
		return nil, fmt.Errorf("docsession: join: %w", err)
	}
	return &Session{
		node:    node,
		doc:     doc,
		author:  author,
		codec:   codec,
		pending: make(map[identifiers.WideId][]docstore.InsertEvent),
	}, nil
}

// Namespace returns the active document's namespace id.
func (s *Session) Namespace() docstore.Namespace { return s.doc.Namespace() }

// ShareTicket mints a capability ticket for the active document, granting
// write access with both relay and direct address hints.
func (s *Session) ShareTicket(ctx context.Context) (docstore.Ticket, error) {
	t, err := s.doc.Share(ctx, docstore.ShareWrite, docstore.AddrRelayAndDirect)
	if err != nil {
		return docstore.Ticket{}, fmt.Errorf("docsession: share ticket: %w", err)
	}
	return t, nil
}

// PutSelf writes the local author's rows under the fixed keys `identity`,
// `status`, `id_pic`, `public_bio`. portrait and bio
// are optional; a nil value skips that row entirely rather than writing an
// empty one.
func (s *Session) PutSelf(ctx context.Context, identity model.Identity, status model.Status, portrait *model.Portrait, bio *identifiers.WideId) error {
	if err := s.putBlobRow(ctx, KeyIdentity, identity); err != nil {
		return err
	}
	if err := s.putBlobRow(ctx, KeyStatus, status); err != nil {
		return err
	}
	if portrait != nil {
		if err := s.putBlobRow(ctx, KeyIDPic, *portrait); err != nil {
			return err
		}
	}
	if bio != nil {
		if err := s.doc.SetHash(ctx, s.author, []byte(KeyPublicBio), *bio, 0); err != nil {
			return fmt.Errorf("docsession: put_self public_bio: %w", err)
		}
	}
	return nil
}

func (s *Session) putBlobRow(ctx context.Context, key string, v any) error {
	data, err := model.Marshal(v)
	if err != nil {
		return fmt.Errorf("docsession: encode %s: %w", key, err)
	}
	ref, err := s.node.Blobs().AddBytes(ctx, s.codec.Compress(data))
	if err != nil {
		return fmt.Errorf("docsession: store %s blob: %w", key, err)
	}
	if err := s.doc.SetHash(ctx, s.author, []byte(key), ref.Hash, ref.Size); err != nil {
		return fmt.Errorf("docsession: set %s hash: %w", key, err)
	}
	return nil
}

// Query runs a key/prefix lookup against the active document, used by
// Identity Domain and Post Domain initialize() calls.
func (s *Session) Query(ctx context.Context, q docstore.Query) ([]docstore.Entry, error) {
	return s.doc.GetMany(ctx, q)
}

// ReadBlob resolves a content hash to bytes via the node's blob store,
// undoing the zstd framing AddBlob/putBlobRow apply on the way in.
func (s *Session) ReadBlob(ctx context.Context, hash docstore.BlobHash) ([]byte, error) {
	data, err := s.node.Blobs().ReadToBytes(ctx, hash)
	if err != nil {
		return nil, err
	}
	return s.codec.Decompress(data)
}

// SetAuthorRow writes a document row under the local author's identity
// (used by domain writers such as the Post Domain's create_post).
func (s *Session) SetAuthorRow(ctx context.Context, key []byte, hash docstore.BlobHash, size uint64) error {
	return s.doc.SetHash(ctx, s.author, key, hash, size)
}

// AddBlob zstd-compresses data and stores it in the node's blob store,
// returning its content reference.
func (s *Session) AddBlob(ctx context.Context, data []byte) (docstore.BlobRef, error) {
	return s.node.Blobs().AddBytes(ctx, s.codec.Compress(data))
}

// CollectionStatus reports local availability of a collection/blob hash.
func (s *Session) CollectionStatus(ctx context.Context, hash docstore.BlobHash) (docstore.BlobStatus, error) {
	return s.node.Blobs().Status(ctx, hash)
}

// SyncPeers returns the opaque peer identifiers currently syncing this
// document, used by the Connection-State Loop's active_peer_count input.
func (s *Session) SyncPeers(ctx context.Context) ([][]byte, error) {
	return s.doc.GetSyncPeers(ctx)
}

// StartSync asks the replication substrate to (re-)establish sync with its
// known peers, rather than waiting on the substrate's own retry timer.
func (s *Session) StartSync(ctx context.Context) error {
	return s.doc.StartSync(ctx)
}

// ConnectionInfo reports liveness for one sync peer returned by
// SyncPeers.
func (s *Session) ConnectionInfo(ctx context.Context, peer []byte) (docstore.ConnectionInfo, error) {
	return s.node.ConnectionInfo(ctx, peer)
}

// Subscribe returns a lazy stream of inserts, past completeness gating. The
// raw replication stream emits both row-inserted and content-transferred
// events; remote
// inserts whose content_status is not Complete are buffered here, keyed by
// content hash, and released only once a matching ContentReady arrives.
// Local insertions and already-complete remote insertions pass through
// immediately.
func (s *Session) Subscribe(ctx context.Context) (<-chan InsertEntry, error) {
	raw, err := s.doc.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("docsession: subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	out := make(chan InsertEntry, 64)
	s.wg.Add(1)
	go s.pump(runCtx, raw, out)
	return out, nil
}

func (s *Session) pump(ctx context.Context, raw <-chan docstore.Event, out chan<- InsertEntry) {
	defer s.wg.Done()
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-raw:
			if !ok {
				return
			}
			s.handleEvent(ctx, evt, out)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, evt docstore.Event, out chan<- InsertEntry) {
	switch {
	case evt.Insert != nil:
		ins := *evt.Insert
		if ins.Origin == docstore.OriginLocal || ins.ContentStatus == docstore.ContentComplete {
			emit(ctx, ins, out)
			return
		}
		s.mu.Lock()
		s.pending[ins.Entry.Hash] = append(s.pending[ins.Entry.Hash], ins)
		s.mu.Unlock()
	case evt.ContentReady != nil:
		hash := evt.ContentReady.Hash
		s.mu.Lock()
		buffered := s.pending[hash]
		delete(s.pending, hash)
		s.mu.Unlock()
		for _, ins := range buffered {
			ins.ContentStatus = docstore.ContentComplete
			emit(ctx, ins, out)
		}
	}
}

func emit(ctx context.Context, ins docstore.InsertEvent, out chan<- InsertEntry) {
	select {
	case out <- InsertEntry{Origin: ins.Origin, Author: ins.Author, Entry: ins.Entry}:
	case <-ctx.Done():
	}
}

// Close cancels the subscription goroutine and closes the document handle.
// Callers must not read from any channel returned by Subscribe afterward.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.doc.Close()
}
