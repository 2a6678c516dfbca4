package blobdispatch

import (
	"context"
	"fmt"

	"github.com/nearbymesh/nearby/pkg/docstore"
)

// fetchMultiSource reconstructs a large collection by asking source peers
// for the root blob one at a time, checking completion after each, rather
// than retrying one peer serially against the whole peer list. One slow or
// unreachable peer costs little progress when several others hold the same
// content-addressed bytes.
func fetchMultiSource(ctx context.Context, blobs docstore.BlobStore, root docstore.BlobHash, recordedSize uint64, peers [][]byte) error {
	for _, peer := range peers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := blobs.DownloadWithOpts(ctx, root, [][]byte{peer}); err != nil {
			// One unreachable peer does not fail the whole reconstruction;
			// later peers may still supply the rest.
			continue
		}
		status, err := blobs.Status(ctx, root)
		if err != nil {
			return fmt.Errorf("multisource: status: %w", err)
		}
		if !isPartial(status, recordedSize) {
			return nil
		}
	}

	status, err := blobs.Status(ctx, root)
	if err != nil {
		return fmt.Errorf("multisource: status: %w", err)
	}
	if isPartial(status, recordedSize) {
		return fmt.Errorf("multisource: incomplete after trying %d peer(s) for %d bytes", len(peers), recordedSize)
	}
	return nil
}
