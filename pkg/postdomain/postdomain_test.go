package postdomain

import (
	"context"
	"testing"

	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResponder struct {
	allCalls []int
	oneCalls []int
}

func (r *fakeResponder) AllPostsUpdated(posts []model.Post) { r.allCalls = append(r.allCalls, len(posts)) }
func (r *fakeResponder) OnePostUpdated(newLen int, post model.Post) {
	r.oneCalls = append(r.oneCalls, newLen)
}

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
func (h *harness) SetAuthorRow(ctx context.Context, key []byte, hash docstore.BlobHash, size uint64) error {
	var author identifiers.WideId
	return h.doc.SetHash(ctx, author, key, hash, size)
}
func (h *harness) AddBlob(ctx context.Context, data []byte) (docstore.BlobRef, error) {
	return h.blobs.AddBytes(ctx, data)
}
func (h *harness) CollectionStatus(ctx context.Context, hash docstore.BlobHash) (docstore.BlobStatus, error) {
	return h.blobs.Status(ctx, hash)
}

func TestCreatePost_ThenInitialize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := New(h, h, &fakeResponder{})

	if err := d.CreatePost(ctx, model.Post{CreatedAt: 100, Title: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := d.CreatePost(ctx, model.Post{CreatedAt: 200, Title: "second"}); err != nil {
		t.Fatal(err)
	}

	fresh := New(h, h, &fakeResponder{})
	if err := fresh.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	posts := fresh.Posts()
	if len(posts) != 2 || posts[0].CreatedAt != 100 || posts[1].CreatedAt != 200 {
		t.Fatalf("posts = %+v, want ascending [100, 200]", posts)
	}
}

func TestCreatePost_PayloadIncomplete_SkipsSiblingRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := New(h, h, &fakeResponder{})

	missing := identifiers.Derive([]byte("never-added"))
	if err := d.CreatePost(ctx, model.Post{CreatedAt: 1, Payload: &missing}); err != nil {
		t.Fatal(err)
	}

	var author identifiers.WideId
	row, err := h.doc.GetExact(ctx, author, []byte("message_payloads/1"))
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Fatal("expected no sibling row for incomplete payload")
	}
}

func TestInsertEntry_OutOfOrder_TriggersAllPostsUpdated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	resp := &fakeResponder{}
	d := New(h, h, resp)

	write := func(createdAt int64) docstore.Entry {
		data, _ := model.Marshal(model.Post{CreatedAt: createdAt})
		ref, err := h.blobs.AddBytes(ctx, data)
		if err != nil {
			t.Fatal(err)
		}
		var author identifiers.WideId
		key := []byte("messages/" + string(rune('a'+int(createdAt))))
		if err := h.doc.SetHash(ctx, author, key, ref.Hash, ref.Size); err != nil {
			t.Fatal(err)
		}
		e, _ := h.doc.GetExact(ctx, author, key)
		return *e
	}

	e1 := write(10)
	if handled, err := d.InsertEntry(ctx, e1); err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	e2 := write(20)
	if handled, err := d.InsertEntry(ctx, e2); err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	// Out-of-order: created_at 5 arrives after 10 and 20.
	e3 := write(5)
	if handled, err := d.InsertEntry(ctx, e3); err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}

	if len(resp.oneCalls) != 2 {
		t.Fatalf("oneCalls = %v, want 2 in-order inserts", resp.oneCalls)
	}
	if len(resp.allCalls) != 1 {
		t.Fatalf("allCalls = %v, want 1 out-of-order insert", resp.allCalls)
	}
	posts := d.Posts()
	for i := 1; i < len(posts); i++ {
		if posts[i-1].CreatedAt > posts[i].CreatedAt {
			t.Fatalf("posts not ascending: %+v", posts)
		}
	}
}

// TestInsertEntry_AlwaysAscending is Testable Property 4: after any
// sequence of insert_entry(post) calls, posts is ascending by created_at.
func TestInsertEntry_AlwaysAscending(t *testing.T) {
	ctx := context.Background()
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		d := New(h, h, &fakeResponder{})
		n := rapid.IntRange(0, 15).Draw(rt, "n")
		for i := 0; i < n; i++ {
			createdAt := int64(rapid.IntRange(0, 1000).Draw(rt, "created_at"))
			data, _ := model.Marshal(model.Post{CreatedAt: createdAt})
			ref, err := h.blobs.AddBytes(ctx, data)
			if err != nil {
				rt.Fatal(err)
			}
			var author identifiers.WideId
			key := []byte(rapid.StringMatching(`messages/[0-9a-f]{1,4}`).Draw(rt, "key"))
			if err := h.doc.SetHash(ctx, author, key, ref.Hash, ref.Size); err != nil {
				rt.Fatal(err)
			}
			e, _ := h.doc.GetExact(ctx, author, key)
			if _, err := d.InsertEntry(ctx, *e); err != nil {
				rt.Fatal(err)
			}
		}
		posts := d.Posts()
		for i := 1; i < len(posts); i++ {
			if posts[i-1].CreatedAt > posts[i].CreatedAt {
				rt.Fatalf("posts not ascending: %+v", posts)
			}
		}
	})
}
