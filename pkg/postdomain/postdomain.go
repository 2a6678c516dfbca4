// Package postdomain implements the Post Domain: the
// time-ordered message list derived from the active document.
package postdomain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/model"
)

// DocReader is the narrow slice of a Document Session the domain needs to
// read rows and blobs, and to write new outgoing posts.
type DocReader interface {
	Query(ctx context.Context, q docstore.Query) ([]docstore.Entry, error)
	ReadBlob(ctx context.Context, hash docstore.BlobHash) ([]byte, error)
}

// DocWriter is the narrow slice needed to publish a post and its optional
// payload sibling row.
type DocWriter interface {
	SetAuthorRow(ctx context.Context, key []byte, hash docstore.BlobHash, size uint64) error
	AddBlob(ctx context.Context, data []byte) (docstore.BlobRef, error)
	CollectionStatus(ctx context.Context, hash docstore.BlobHash) (docstore.BlobStatus, error)
}

// Responder is the narrow, non-owning callback surface the domain reports
// through.
type Responder interface {
	AllPostsUpdated(posts []model.Post)
	OnePostUpdated(newLen int, post model.Post)
}

const keyMessagesPrefix = "messages/"

// Domain maintains posts ordered ascending by CreatedAt. Posts with equal
// CreatedAt keep the order in which they were read or inserted; they are
// not ordered by PK.
type Domain struct {
	reader    DocReader
	writer    DocWriter
	responder Responder

	mu    sync.RWMutex
	posts []model.Post
}

// New constructs an empty domain bound to reader/writer/responder.
func New(reader DocReader, writer DocWriter, responder Responder) *Domain {
	return &Domain{reader: reader, writer: writer, responder: responder}
}

// Initialize reads every `messages/*` row sorted by (key, author) ascending
// and fills posts.
func (d *Domain) Initialize(ctx context.Context) error {
	rows, err := d.reader.Query(ctx, docstore.Query{Key: []byte(keyMessagesPrefix), PrefixOf: true})
	if err != nil {
		return fmt.Errorf("postdomain: query messages: %w", err)
	}

	posts := make([]model.Post, 0, len(rows))
	for _, row := range rows {
		data, err := d.reader.ReadBlob(ctx, row.Hash)
		if err != nil {
			return fmt.Errorf("postdomain: read post blob: %w", err)
		}
		var p model.Post
		if err := model.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("postdomain: decode post: %w", err)
		}
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt < posts[j].CreatedAt })

	d.mu.Lock()
	d.posts = posts
	d.mu.Unlock()
	return nil
}

// Handles reports whether key is the messages prefix this domain owns.
func (d *Domain) Handles(key []byte) bool {
	s := string(key)
	return len(s) >= len(keyMessagesPrefix) && s[:len(keyMessagesPrefix)] == keyMessagesPrefix
}

// CreatePost serializes p and writes it under `messages/<created_at>`. If
// p.Payload is set, the domain checks that collection's blob status once
// and, if it is Complete, writes a sibling row under
// `message_payloads/<created_at>` with the collection hash and size; it does
// not wait for an incomplete payload. A missing/incomplete payload logs and
// skips the sibling row without failing the post write.
func (d *Domain) CreatePost(ctx context.Context, p model.Post) error {
	data, err := model.Marshal(p)
	if err != nil {
		return fmt.Errorf("postdomain: encode post: %w", err)
	}
	ref, err := d.writer.AddBlob(ctx, data)
	if err != nil {
		return fmt.Errorf("postdomain: store post blob: %w", err)
	}
	key := fmt.Sprintf("%s%d", keyMessagesPrefix, p.CreatedAt)
	if err := d.writer.SetAuthorRow(ctx, []byte(key), ref.Hash, ref.Size); err != nil {
		return fmt.Errorf("postdomain: write post row: %w", err)
	}

	if p.Payload != nil {
		status, err := d.writer.CollectionStatus(ctx, *p.Payload)
		if err != nil || status.Kind != docstore.BlobComplete {
			slog.Warn("postdomain: payload not complete, skipping sibling row",
				"created_at", p.CreatedAt, "err", err, "status", status.Kind)
		} else {
			payloadKey := fmt.Sprintf("message_payloads/%d", p.CreatedAt)
			if err := d.writer.SetAuthorRow(ctx, []byte(payloadKey), *p.Payload, status.Size); err != nil {
				return fmt.Errorf("postdomain: write payload row: %w", err)
			}
		}
	}
	return nil
}

// InsertEntry deserializes e's blob as a Post and inserts it into the
// ordered list. Posts with an earlier
// CreatedAt than the current last element are out-of-order: appended then
// stable-sorted, emitting AllPostsUpdated; otherwise appended in place,
// emitting OnePostUpdated.
func (d *Domain) InsertEntry(ctx context.Context, e docstore.Entry) (handled bool, err error) {
	if !d.Handles(e.Key) {
		return false, nil
	}

	data, err := d.reader.ReadBlob(ctx, e.Hash)
	if err != nil {
		return true, fmt.Errorf("postdomain: read post blob: %w", err)
	}
	var p model.Post
	if err := model.Unmarshal(data, &p); err != nil {
		return true, fmt.Errorf("postdomain: decode post: %w", err)
	}

	d.mu.Lock()
	outOfOrder := len(d.posts) > 0 && p.CreatedAt < d.posts[len(d.posts)-1].CreatedAt
	d.posts = append(d.posts, p)
	if outOfOrder {
		sort.SliceStable(d.posts, func(i, j int) bool { return d.posts[i].CreatedAt < d.posts[j].CreatedAt })
	}
	snapshot := make([]model.Post, len(d.posts))
	copy(snapshot, d.posts)
	newLen := len(d.posts)
	d.mu.Unlock()

	if outOfOrder {
		d.responder.AllPostsUpdated(snapshot)
	} else {
		d.responder.OnePostUpdated(newLen, p)
	}
	return true, nil
}

// Posts returns a snapshot of the current post list.
func (d *Domain) Posts() []model.Post {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Post, len(d.posts))
	copy(out, d.posts)
	return out
}
