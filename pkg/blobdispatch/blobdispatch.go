// Package blobdispatch implements the Blob Dispatcher:
// services view-side requests for blob bytes, fetching from the external
// blob store without letting one slow request block another.
package blobdispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nearbymesh/nearby/internal/metrics"
	"github.com/nearbymesh/nearby/pkg/blobcodec"
	"github.com/nearbymesh/nearby/pkg/docstore"
	"github.com/nearbymesh/nearby/pkg/identifiers"
)

// StateKind tags a BlobState.
type StateKind uint8

const (
	StateLoading StateKind = iota
	StateLoaded
	StateFailed
)

// State is the tagged union reported to a responder's Update.
type State struct {
	Kind    StateKind
	Hash    docstore.BlobHash // set for Loaded
	Bytes   []byte            // set for Loaded
	Message string            // set for Failed
}

// Responder is one view-side blob request. Hash may return ok=false, meaning the consumer
// has no hash yet; Dispatch then returns silently without calling Update.
type Responder interface {
	Hash() (docstore.BlobHash, bool)
	Update(State)
}

// maxSingleFetchSize is the threshold above which FetchCollection fans a
// collection's root blob out across multiple source peers in turn instead
// of handing the whole peer list to a single download call.
const maxSingleFetchSize = 4 << 20 // 4 MiB

// Dispatcher is a cheap, handle-like value: copying it is safe and every
// copy shares the same concurrency limit and blob store.
type Dispatcher struct {
	blobs   docstore.BlobStore
	sem     *semaphore.Weighted
	codec   *blobcodec.Codec
	metrics *metrics.Metrics
}

// SetMetrics attaches a Metrics instance. Optional; Clone carries it along
// to every handle sharing this Dispatcher.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// New builds a Dispatcher backed by blobs, allowing at most maxInFlight
// concurrent fetches.
func New(blobs docstore.BlobStore, maxInFlight int64) (*Dispatcher, error) {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	codec, err := blobcodec.New()
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: build codec: %w", err)
	}
	return &Dispatcher{
		blobs: blobs,
		sem:   semaphore.NewWeighted(maxInFlight),
		codec: codec,
	}, nil
}

// Clone returns a handle sharing this Dispatcher's concurrency limit and
// blob store — the value itself is already a handle, so Clone is simply
// documentation that copying is intentional and cheap.
func (d *Dispatcher) Clone() *Dispatcher {
	return &Dispatcher{blobs: d.blobs, sem: d.sem, codec: d.codec, metrics: d.metrics}
}

// Dispatch services one responder. If responder.Hash() has no value yet,
// Dispatch returns immediately without emitting any state. Otherwise it emits Loading, fetches
// bytes, and emits exactly one of Loaded or Failed. Many Dispatch calls
// may run concurrently; none blocks another beyond the shared semaphore's
// fetch cap.
func (d *Dispatcher) Dispatch(ctx context.Context, r Responder) {
	hash, ok := r.Hash()
	if !ok {
		return
	}

	r.Update(State{Kind: StateLoading})

	go func() {
		start := time.Now()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.recordFetch("acquire_failed", start)
			r.Update(State{Kind: StateFailed, Message: err.Error()})
			return
		}
		defer d.sem.Release(1)

		data, err := d.fetch(ctx, hash)
		if err != nil {
			slog.Warn("blobdispatch: fetch failed", "hash", blobCIDOrRaw(hash), "err", err)
			d.recordFetch("failed", start)
			r.Update(State{Kind: StateFailed, Message: err.Error()})
			return
		}
		d.recordFetch("loaded", start)
		r.Update(State{Kind: StateLoaded, Hash: hash, Bytes: data})
	}()
}

func (d *Dispatcher) recordFetch(result string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.BlobFetchTotal.WithLabelValues(result).Inc()
	d.metrics.BlobFetchDurationSeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) fetch(ctx context.Context, hash docstore.BlobHash) ([]byte, error) {
	status, err := d.blobs.Status(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: status: %w", err)
	}
	if status.Kind == docstore.BlobNotFound {
		return nil, fmt.Errorf("blobdispatch: blob %s not found locally and no peers given", hash)
	}
	data, err := d.blobs.ReadToBytes(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: read: %w", err)
	}
	out, err := d.codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: %w", err)
	}
	return out, nil
}

// blobCIDOrRaw renders hash as a CIDv1 string for logging, falling back to
// its raw WideId display if it cannot be encoded as one (never expected in
// practice, since every BlobHash is a 32-byte BLAKE3 digest).
func blobCIDOrRaw(hash docstore.BlobHash) string {
	c, err := identifiers.BlobCID(hash)
	if err != nil {
		return hash.String()
	}
	return c.String()
}

// isPartial reports whether a collection whose observed byte total is short
// of recordedSize should be re-queued for fetch. A collection already
// matching recordedSize is never re-fetched, since content addressing
// guarantees identical bytes for an identical hash.
func isPartial(status docstore.BlobStatus, recordedSize uint64) bool {
	return status.Kind != docstore.BlobComplete || status.Size < recordedSize
}

// FetchCollection resolves every member of a Collection, trying source peers
// one at a time when the collection's total recorded size exceeds
// maxSingleFetchSize and more than one peer is available, rather than
// handing the whole peer list to a single download call.
func (d *Dispatcher) FetchCollection(ctx context.Context, root docstore.BlobHash, recordedSize uint64, peers [][]byte) ([]docstore.NamedBlob, error) {
	items, err := d.blobs.GetCollection(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: get collection: %w", err)
	}

	status, err := d.blobs.Status(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("blobdispatch: collection status: %w", err)
	}
	if isPartial(status, recordedSize) {
		if recordedSize > maxSingleFetchSize && len(peers) > 1 {
			if err := fetchMultiSource(ctx, d.blobs, root, recordedSize, peers); err != nil {
				return nil, fmt.Errorf("blobdispatch: multi-source fetch: %w", err)
			}
		} else if err := d.blobs.DownloadWithOpts(ctx, root, peers); err != nil {
			return nil, fmt.Errorf("blobdispatch: download: %w", err)
		}
	}
	return items, nil
}
