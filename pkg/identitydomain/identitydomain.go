// Package identitydomain implements the Identity Domain: the
// per-document view of every author's identity row and portrait pointer,
// kept up to date as the document receives inserts.
package identitydomain

import (
	"context"
	"fmt"
	"sync"

	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/model"
)

// DocReader is the narrow slice of a Document Session the domain needs:
// key lookups and blob reads. Satisfied by *docsession.Session.
type DocReader interface {
	Query(ctx context.Context, q docstore.Query) ([]docstore.Entry, error)
	ReadBlob(ctx context.Context, hash docstore.BlobHash) ([]byte, error)
}

// Responder is the narrow, non-owning callback surface the domain reports
// through, rather than calling back into the Nearby Service directly.
type Responder interface {
	IdentitiesDidUpdate(addedNew bool)
	PicsDidUpdate()
}

const (
	keyIdentity = "identity"
	keyIDPic    = "id_pic"
)

// Domain maintains identities and pics over the active document.
type Domain struct {
	reader    DocReader
	responder Responder

	mu         sync.RWMutex
	identities []model.Identity
	pics       map[identifiers.WideId]identifiers.WideId
}

// New constructs an empty domain bound to reader and responder.
func New(reader DocReader, responder Responder) *Domain {
	return &Domain{
		reader:    reader,
		responder: responder,
		pics:      make(map[identifiers.WideId]identifiers.WideId),
	}
}

// Initialize issues the identity and id_pic queries against the active
// document and fills identities/pics from the results. It does not invoke the responder — call sites (the Nearby
// Service load sequence) emit the update events themselves afterward.
func (d *Domain) Initialize(ctx context.Context) error {
	identityRows, err := d.reader.Query(ctx, docstore.Query{Key: []byte(keyIdentity)})
	if err != nil {
		return fmt.Errorf("identitydomain: query identity: %w", err)
	}

	var identities []model.Identity
	for _, row := range identityRows {
		data, err := d.reader.ReadBlob(ctx, row.Hash)
		if err != nil {
			return fmt.Errorf("identitydomain: read identity blob for %s: %w", row.Author, err)
		}
		var id model.Identity
		if err := model.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("identitydomain: decode identity for %s: %w", row.Author, err)
		}
		identities = upsertIdentity(identities, id)
	}

	picRows, err := d.reader.Query(ctx, docstore.Query{Key: []byte(keyIDPic)})
	if err != nil {
		return fmt.Errorf("identitydomain: query id_pic: %w", err)
	}
	pics := make(map[identifiers.WideId]identifiers.WideId, len(picRows))
	for _, row := range picRows {
		pics[row.Author] = row.Hash
	}

	d.mu.Lock()
	d.identities = identities
	d.pics = pics
	d.mu.Unlock()
	return nil
}

// Handles reports whether key is one this domain classifies.
func (d *Domain) Handles(key []byte) bool {
	s := string(key)
	return s == keyIdentity || s == keyIDPic
}

// InsertEntry processes one document insert. It returns handled=false and
// does nothing for any key Handles rejects.
func (d *Domain) InsertEntry(ctx context.Context, e docstore.Entry) (handled bool, err error) {
	switch string(e.Key) {
	case keyIdentity:
		data, err := d.reader.ReadBlob(ctx, e.Hash)
		if err != nil {
			return true, fmt.Errorf("identitydomain: read identity blob for %s: %w", e.Author, err)
		}
		var id model.Identity
		if err := model.Unmarshal(data, &id); err != nil {
			return true, fmt.Errorf("identitydomain: decode identity for %s: %w", e.Author, err)
		}

		d.mu.Lock()
		before := len(d.identities)
		d.identities = upsertIdentity(d.identities, id)
		addedNew := len(d.identities) > before
		d.mu.Unlock()

		d.responder.IdentitiesDidUpdate(addedNew)
		return true, nil

	case keyIDPic:
		d.mu.Lock()
		if d.pics == nil {
			d.pics = make(map[identifiers.WideId]identifiers.WideId)
		}
		d.pics[e.Author] = e.Hash
		d.mu.Unlock()

		d.responder.PicsDidUpdate()
		return true, nil

	default:
		return false, nil
	}
}

// Identities returns a snapshot of the current identity list.
func (d *Domain) Identities() []model.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Identity, len(d.identities))
	copy(out, d.identities)
	return out
}

// DistinctIdentityCount reports how many distinct authors have published
// an identity row, used by the Nearby Service's found_group recomputation.
func (d *Domain) DistinctIdentityCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.identities)
}

// Pic returns the portrait blob hash for author, if any.
func (d *Domain) Pic(author identifiers.WideId) (identifiers.WideId, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.pics[author]
	return h, ok
}

// upsertIdentity replaces the existing entry for id.PK if present,
// otherwise appends.
func upsertIdentity(identities []model.Identity, id model.Identity) []model.Identity {
	for i, existing := range identities {
		if existing.PK == id.PK {
			identities[i] = id
			return identities
		}
	}
	return append(identities, id)
}
