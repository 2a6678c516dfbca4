// Package rendezvous implements the Rendezvous Selector: a
// pure function that picks which shared document a node should join next,
// given its own document and the set of currently radio-visible peers.
package rendezvous

import (
	"bytes"
	"sort"

	"github.com/nearbymesh/nearby/pkg/peerdesc"
)

// Select runs the rendezvous algorithm and returns the document_data the
// local node should join next. selfDocument is the local node's own
// document_data; peers is the current radio-peer table.
//
// Select is a pure function of its inputs: callers re-evaluate only after
// a peer-table update, and the result is stable under any
// permutation of peers (Testable Property 1).
func Select(selfDocument []byte, peers peerdesc.Table) []byte {
	settled := peers.Settled()

	if len(settled) > 0 {
		if best, count := majority(settled); count > 1 {
			// Majority rule (Testable Property 2): a settled document with
			// more than one vote wins outright.
			return best
		}
		// No majority: deterministic tie-break among settled documents
		// (Testable Property 3).
		return smallest(docsOf(settled))
	}

	// No settled peers at all: converge with other scanners, including
	// ourselves, on the smallest document among the whole unsettled set.
	unsettled := peers.Unsettled()
	candidates := docsOf(unsettled)
	candidates = append(candidates, selfDocument)
	return smallest(candidates)
}

// majority returns the most frequent document_data among descs and its
// occurrence count. Ties among equally-frequent documents are broken by
// byte-lexicographic order so the result is permutation-stable.
func majority(descs []peerdesc.Descriptor) ([]byte, int) {
	counts := make(map[string]int, len(descs))
	for _, d := range descs {
		counts[string(d.DocumentData)]++
	}

	var bestKey string
	bestCount := -1
	first := true
	for key, count := range counts {
		switch {
		case count > bestCount:
			bestKey, bestCount = key, count
		case count == bestCount && !first && key < bestKey:
			bestKey = key
		}
		first = false
	}
	return []byte(bestKey), bestCount
}

// docsOf extracts the document_data field of each descriptor.
func docsOf(descs []peerdesc.Descriptor) [][]byte {
	out := make([][]byte, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.DocumentData)
	}
	return out
}

// smallest returns the lexicographically smallest byte string in docs.
// docs must be non-empty.
func smallest(docs [][]byte) []byte {
	best := docs[0]
	for _, d := range docs[1:] {
		if bytes.Compare(d, best) < 0 {
			best = d
		}
	}
	return best
}

// CollateAddresses gathers the address_data of every peer whose
// document_data equals target, decodes each with decode, and concatenates
// the resulting address lists in ascending UUID order of the contributing
// peer.
func CollateAddresses(target []byte, peers peerdesc.Table, decode func([]byte) ([][]byte, error)) ([][]byte, error) {
	var contributors []peerdesc.Descriptor
	for _, d := range peers {
		if bytes.Equal(d.DocumentData, target) {
			contributors = append(contributors, d)
		}
	}
	sort.Slice(contributors, func(i, j int) bool {
		return bytes.Compare(contributors[i].UUID[:], contributors[j].UUID[:]) < 0
	})

	var out [][]byte
	for _, d := range contributors {
		if len(d.AddressData) == 0 {
			continue
		}
		addrs, err := decode(d.AddressData)
		if err != nil {
			return nil, err
		}
		out = append(out, addrs...)
	}
	return out, nil
}
