package daqcore

import "sort"

// ChunkOptions bundles the chunk-geometry knobs.
type ChunkOptions struct {
	ChunkLengthNS     int64 // default 5e9
	ChunkOverlapNS    int64 // default 5e8
	PhaseLimit        int64 // default 2, in units of chunk ids
	BufferNumChunks   int64 // default 2, flush threshold
	FragmentPayload   int   // default 220 bytes
}

// FullChunkLength is the chunk length plus its trailing overlap window.
func (o ChunkOptions) FullChunkLength() int64 { return o.ChunkLengthNS + o.ChunkOverlapNS }

// SamplesPerFragment derives the sample count per fragment from the
// configured payload byte budget (2 bytes per sample).
func (o ChunkOptions) SamplesPerFragment() int { return o.FragmentPayload / 2 }

// Chunker is the per-Formatter-Worker state mapping chunk_id to its
// normal and overlap fragment buckets.
type Chunker struct {
	opts ChunkOptions

	normal  map[int64][]Fragment
	overlap map[int64][]Fragment

	minChunk    int64
	maxChunk    int64
	haveAny     bool
	fragCount   int64
	fragIDSum   int64 // Σ(chunk_id × fragments), for average_chunk
}

// NewChunker builds an empty chunker with the given geometry.
func NewChunker(opts ChunkOptions) *Chunker {
	return &Chunker{
		opts:    opts,
		normal:  make(map[int64][]Fragment),
		overlap: make(map[int64][]Fragment),
	}
}

// Route places one fragment into its normal or overlap bucket, and
// returns whether it's an overlap fragment plus any phase/jump warning
// text (empty if none) for the caller to log.
func (c *Chunker) Route(f Fragment) (chunkID int64, isOverlap bool, warning string) {
	full := c.opts.FullChunkLength()
	chunkID = f.Timestamp / full

	remaining := (chunkID+1)*full - f.Timestamp
	isOverlap = remaining <= c.opts.ChunkOverlapNS

	if c.haveAny {
		if chunkID < c.minChunk-c.opts.PhaseLimit {
			warning = "chunk_id older than phase limit, data may be lost downstream"
		}
		if chunkID > c.maxChunk+1 {
			warning = "chunk_id jumped more than one beyond current maximum"
		}
	}

	if !c.haveAny {
		c.minChunk, c.maxChunk, c.haveAny = chunkID, chunkID, true
	} else {
		if chunkID < c.minChunk {
			c.minChunk = chunkID
		}
		if chunkID > c.maxChunk {
			c.maxChunk = chunkID
		}
	}

	if isOverlap {
		c.overlap[chunkID] = append(c.overlap[chunkID], f)
	} else {
		c.normal[chunkID] = append(c.normal[chunkID], f)
	}
	c.fragCount++
	c.fragIDSum += chunkID
	return chunkID, isOverlap, warning
}

// AverageChunk computes Σ(chunk_id × fragments) / Σ(fragments).
// Returns 0 if no fragments have been routed yet.
func (c *Chunker) AverageChunk() int64 {
	if c.fragCount == 0 {
		return 0
	}
	return c.fragIDSum / c.fragCount
}

// FlushableChunks returns the chunk ids strictly below
// average - bufferNumChunks that still have buffered data, ascending.
func (c *Chunker) FlushableChunks() []int64 {
	threshold := c.AverageChunk() - c.opts.BufferNumChunks
	var ids []int64
	seen := make(map[int64]bool)
	for id := range c.normal {
		if id < threshold && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for id := range c.overlap {
		if id < threshold && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	sortInt64s(ids)
	return ids
}

// Take removes and returns the normal and overlap buckets for chunkID.
func (c *Chunker) Take(chunkID int64) (normal, overlap []Fragment) {
	normal, overlap = c.normal[chunkID], c.overlap[chunkID]
	delete(c.normal, chunkID)
	delete(c.overlap, chunkID)
	return normal, overlap
}

// RemainingChunkIDs returns every chunk id that still has buffered data
// in either bucket, descending (used by end-of-run draining).
func (c *Chunker) RemainingChunkIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for id := range c.normal {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for id := range c.overlap {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	sortInt64sDesc(ids)
	return ids
}

// MinMaxSeen reports the smallest and largest chunk_id ever routed, used
// by create_empty's grid-completeness pass.
func (c *Chunker) MinMaxSeen() (min, max int64, ok bool) {
	return c.minChunk, c.maxChunk, c.haveAny
}

func sortInt64s(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

func sortInt64sDesc(s []int64) {
	sort.Slice(s, func(i, j int) bool { return s[i] > s[j] })
}
