package daqcore

import "testing"

func testChunkOpts() ChunkOptions {
	return ChunkOptions{
		ChunkLengthNS:   5e9,
		ChunkOverlapNS:  5e8,
		PhaseLimit:      2,
		BufferNumChunks: 2,
		FragmentPayload: 220,
	}
}

// TestChunkPartitioning checks that a fragment within the trailing
// overlap window of a chunk routes to the overlap bucket, while an
// earlier one in the same chunk routes to the normal bucket.
func TestChunkPartitioning(t *testing.T) {
	c := NewChunker(testChunkOpts())

	// chunk 0 spans [0, 5.5e9); overlap band is its last 5e8 ns, [5e9, 5.5e9).
	normal := Fragment{Timestamp: 4e9}
	overlap := Fragment{Timestamp: 5.3e9} // full=5.5e9, chunk_id=0, remaining=0.2e9 <= overlap

	id1, isOv1, _ := c.Route(normal)
	id2, isOv2, _ := c.Route(overlap)

	if id1 != 0 || isOv1 {
		t.Errorf("normal fragment: chunk=%d overlap=%v, want chunk=0 overlap=false", id1, isOv1)
	}
	if id2 != 0 || !isOv2 {
		t.Errorf("overlap fragment: chunk=%d overlap=%v, want chunk=0 overlap=true", id2, isOv2)
	}

	n, ov := c.Take(0)
	if len(n) != 1 || len(ov) != 1 {
		t.Fatalf("chunk 0: normal=%d overlap=%d, want 1 and 1", len(n), len(ov))
	}
}

func TestAverageChunkAndFlushable(t *testing.T) {
	c := NewChunker(testChunkOpts())
	full := c.opts.FullChunkLength()

	for _, id := range []int64{0, 1, 1, 5, 5, 5} {
		c.Route(Fragment{Timestamp: id*full + 1})
	}
	// average = (0+1+1+5+5+5)/6 = 17/6 = 2
	if avg := c.AverageChunk(); avg != 2 {
		t.Fatalf("AverageChunk = %d, want 2", avg)
	}
	// threshold = avg - bufferNumChunks = 2 - 2 = 0; chunks strictly < 0: none
	if f := c.FlushableChunks(); len(f) != 0 {
		t.Fatalf("FlushableChunks = %v, want none", f)
	}
}

func TestPhaseLimitWarning(t *testing.T) {
	c := NewChunker(testChunkOpts())
	full := c.opts.FullChunkLength()

	c.Route(Fragment{Timestamp: 10 * full})
	_, _, warn := c.Route(Fragment{Timestamp: 5 * full}) // 10-5=5 > phase limit 2
	if warn == "" {
		t.Error("expected a phase-limit warning for a chunk older than the limit")
	}
}

func TestRemainingChunkIDsDescending(t *testing.T) {
	c := NewChunker(testChunkOpts())
	full := c.opts.FullChunkLength()
	for _, id := range []int64{3, 1, 2} {
		c.Route(Fragment{Timestamp: id * full})
	}
	ids := c.RemainingChunkIDs()
	want := []int64{3, 2, 1}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}
