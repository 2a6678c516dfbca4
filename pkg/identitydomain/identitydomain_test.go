package identitydomain

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResponder struct {
	identityCalls []bool
	picCalls      int
}

func (r *fakeResponder) IdentitiesDidUpdate(addedNew bool) {
	r.identityCalls = append(r.identityCalls, addedNew)
}
func (r *fakeResponder) PicsDidUpdate() { r.picCalls++ }

// harness wires a memory docstore Doc + blob store behind the DocReader
// interface without depending on package docsession (which itself depends
// on nothing here — avoided only to keep this test self-contained).
type harness struct {
	doc   docstore.Doc
	blobs docstore.BlobStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	node := docstore.NewMemoryNode()
	doc, err := node.Docs().Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return &harness{doc: doc, blobs: node.Blobs()}
}

func (h *harness) Query(ctx context.Context, q docstore.Query) ([]docstore.Entry, error) {
	return h.doc.GetMany(ctx, q)
}

func (h *harness) ReadBlob(ctx context.Context, hash docstore.BlobHash) ([]byte, error) {
	return h.blobs.ReadToBytes(ctx, hash)
}

func (h *harness) writeIdentity(t *testing.T, author identifiers.WideId, name string) {
	t.Helper()
	ctx := context.Background()
	data, err := model.Marshal(model.Identity{PK: author, Name: name})
	if err != nil {
		t.Fatal(err)
	}
	ref, err := h.blobs.AddBytes(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.doc.SetHash(ctx, author, []byte("identity"), ref.Hash, ref.Size); err != nil {
		t.Fatal(err)
	}
}

func author(n byte) identifiers.WideId {
	var b [32]byte
	b[0] = n
	id, _ := identifiers.FromBytes(b[:])
	return id
}

func TestInitialize_LoadsExistingRows(t *testing.T) {
	h := newHarness(t)
	a1, a2 := author(1), author(2)
	h.writeIdentity(t, a1, "alice")
	h.writeIdentity(t, a2, "bob")

	resp := &fakeResponder{}
	d := New(h, resp)
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.DistinctIdentityCount() != 2 {
		t.Fatalf("count = %d, want 2", d.DistinctIdentityCount())
	}
}

func TestInsertEntry_UpsertReportsAddedNew(t *testing.T) {
	h := newHarness(t)
	resp := &fakeResponder{}
	d := New(h, resp)

	a1 := author(1)
	h.writeIdentity(t, a1, "alice")
	ctx := context.Background()
	e, err := h.doc.GetExact(ctx, a1, []byte("identity"))
	if err != nil || e == nil {
		t.Fatalf("expected row, err=%v", err)
	}

	handled, err := d.InsertEntry(ctx, *e)
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("expected identity key to be handled")
	}
	if len(resp.identityCalls) != 1 || resp.identityCalls[0] != true {
		t.Fatalf("expected one added_new=true callback, got %v", resp.identityCalls)
	}

	// Re-insert same author under a new name: upsert, not append.
	h.writeIdentity(t, a1, "alice2")
	e2, _ := h.doc.GetExact(ctx, a1, []byte("identity"))
	handled, err = d.InsertEntry(ctx, *e2)
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("expected identity key to be handled")
	}
	if d.DistinctIdentityCount() != 1 {
		t.Fatalf("count = %d, want 1 (upsert, not append)", d.DistinctIdentityCount())
	}
	if resp.identityCalls[1] != false {
		t.Fatalf("second call addedNew = %v, want false", resp.identityCalls[1])
	}
}

func TestInsertEntry_UnknownKeyNotHandled(t *testing.T) {
	h := newHarness(t)
	d := New(h, &fakeResponder{})
	handled, err := d.InsertEntry(context.Background(), docstore.Entry{Key: []byte("messages/1")})
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("expected unknown key to be unhandled")
	}
}

func TestHandles(t *testing.T) {
	d := New(newHarness(t), &fakeResponder{})
	if !d.Handles([]byte("identity")) || !d.Handles([]byte("id_pic")) {
		t.Fatal("expected identity/id_pic to be handled")
	}
	if d.Handles([]byte("status")) {
		t.Fatal("expected status to be rejected")
	}
}
