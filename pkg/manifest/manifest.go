// Package manifest splits a bundle's public spans into size-bounded chunks
// and produces the manifest binding them back to the bundle's root hashes.
// Grounded in the teacher's pkg/commitment package's canonical-hash-over-a-
// derived-struct idiom, generalized from commitment's single blob to a
// chunked collection.
package manifest

import (
	"github.com/poi-trace/core/pkg/bundle"
	"github.com/poi-trace/core/pkg/codec"
	"github.com/poi-trace/core/pkg/poierrors"
)

const domainManifest = "poi-trace:manifest:v1|"

// Chunk is one size-bounded group of a bundle's public spans.
type Chunk struct {
	Index     int      `json:"index"`
	Hash      string   `json:"hash"`
	ByteRange [2]int   `json:"byteRange"`
	SpanIDs   []string `json:"spanIds"`
}

// Manifest binds a run's chunked public view back to its bundle root hashes.
type Manifest struct {
	RunID          string  `json:"runId"`
	ManifestHash   string  `json:"manifestHash"`
	TotalChunks    int     `json:"totalChunks"`
	ChunkSize      int     `json:"chunkSize"`
	Chunks         []Chunk `json:"chunks"`
	BundleRootHash string  `json:"bundleRootHash"`
	MerkleRoot     string  `json:"merkleRoot"`
}

// Options configures manifest creation.
type Options struct {
	ChunkSize int // maximum serialized-byte size of a chunk
}

type chunkPayload struct {
	Spans  []interface{} `json:"spans"`
	Events []interface{} `json:"events"`
}

// Create splits b's public spans into groups whose canonical serialized
// size does not exceed opts.ChunkSize, hashes each chunk, and computes the
// top-level manifestHash. It returns a copy of b with ManifestHash set, so
// downstream anchors bind to it, alongside the Manifest itself.
func Create(b *bundle.Bundle, opts Options) (*Manifest, *bundle.Bundle, error) {
	if opts.ChunkSize <= 0 {
		return nil, nil, poierrors.Input("chunkSize must be positive")
	}

	spans := b.PublicView.PublicSpans
	eventByID := collectEvents(b)

	var chunks []Chunk
	var currentSpanIDs []string
	var currentSpans []interface{}
	var currentEvents []interface{}
	offset := 0

	flush := func() error {
		if len(currentSpans) == 0 {
			return nil
		}
		payload := chunkPayload{Spans: currentSpans, Events: currentEvents}
		raw, err := codec.Canonical(payload)
		if err != nil {
			return poierrors.Encoding("failed to canonicalize chunk: " + err.Error())
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Hash:      codec.SHA256Hex(string(raw)),
			ByteRange: [2]int{offset, offset + len(raw)},
			SpanIDs:   currentSpanIDs,
		})
		offset += len(raw)
		currentSpanIDs = nil
		currentSpans = nil
		currentEvents = nil
		return nil
	}

	for _, span := range spans {
		spanEvents := make([]interface{}, 0, len(span.EventIDs))
		for _, eid := range span.EventIDs {
			if e, ok := eventByID[eid]; ok {
				spanEvents = append(spanEvents, e)
			}
		}

		candidateSpans := append(append([]interface{}{}, currentSpans...), span)
		candidateEvents := append(append([]interface{}{}, currentEvents...), spanEvents...)
		candidate := chunkPayload{Spans: candidateSpans, Events: candidateEvents}
		raw, err := codec.Canonical(candidate)
		if err != nil {
			return nil, nil, poierrors.Encoding("failed to canonicalize chunk: " + err.Error())
		}

		if len(currentSpans) > 0 && len(raw) > opts.ChunkSize {
			if err := flush(); err != nil {
				return nil, nil, err
			}
			currentSpans = []interface{}{span}
			currentEvents = spanEvents
			currentSpanIDs = []string{span.ID}
			continue
		}

		currentSpans = candidateSpans
		currentEvents = candidateEvents
		currentSpanIDs = append(currentSpanIDs, span.ID)
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}

	m := &Manifest{
		RunID:          b.PublicView.RunID,
		TotalChunks:    len(chunks),
		ChunkSize:      opts.ChunkSize,
		Chunks:         chunks,
		BundleRootHash: b.RootHash,
		MerkleRoot:     b.MerkleRoot,
	}
	if m.Chunks == nil {
		m.Chunks = []Chunk{}
	}

	hash, err := manifestHash(m)
	if err != nil {
		return nil, nil, err
	}
	m.ManifestHash = hash

	updated := *b
	updated.ManifestHash = hash
	return m, &updated, nil
}

func collectEvents(b *bundle.Bundle) map[string]interface{} {
	out := make(map[string]interface{})
	if b.PrivateRun == nil {
		return out
	}
	for _, span := range b.PublicView.PublicSpans {
		for _, eid := range span.EventIDs {
			for _, e := range b.PrivateRun.Events {
				if e.ID == eid {
					out[eid] = e
					break
				}
			}
		}
	}
	return out
}

func manifestHash(m *Manifest) (string, error) {
	bare := *m
	bare.ManifestHash = ""
	raw, err := codec.Canonical(bare)
	if err != nil {
		return "", poierrors.Encoding("failed to canonicalize manifest: " + err.Error())
	}
	return codec.SHA256Hex(domainManifest + string(raw)), nil
}
