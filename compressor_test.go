package daqcore

import (
	"bytes"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func TestLZ4CompressorRoundTrip(t *testing.T) {
	c, err := NewCompressor("lz4")
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	input := bytes.Repeat([]byte("waveform-sample-bytes"), 200)

	out, sizeIn, err := c.Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if sizeIn != len(input) {
		t.Fatalf("sizeIn = %d, want %d", sizeIn, len(input))
	}

	r := lz4.NewReader(bytes.NewReader(out))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("lz4 decompress: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), input) {
		t.Fatal("decompressed bytes do not match input")
	}
}

func TestNoneCompressorPassthrough(t *testing.T) {
	c, _ := NewCompressor("none")
	input := []byte{1, 2, 3, 4}
	out, sizeIn, err := c.Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if sizeIn != len(input) || !bytes.Equal(out, input) {
		t.Fatalf("none compressor altered data: out=%v sizeIn=%d", out, sizeIn)
	}
}

// TestDeleteCompressorSkipsFile checks that the delete compressor sets
// size_in=0 so the writer skips the file entirely.
func TestDeleteCompressorSkipsFile(t *testing.T) {
	c, _ := NewCompressor("delete")
	out, sizeIn, err := c.Compress([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if sizeIn != 0 {
		t.Fatalf("sizeIn = %d, want 0", sizeIn)
	}
	if out != nil {
		t.Fatalf("out = %v, want nil", out)
	}
}

func TestUnknownCompressorIsConfigurationError(t *testing.T) {
	_, err := NewCompressor("zstd-but-not-really")
	if err == nil {
		t.Fatal("expected an error for an unrecognized compressor name")
	}
	var de *DaqError
	if e, ok := err.(*DaqError); ok {
		de = e
	}
	if de == nil || de.Kind != KindConfiguration {
		t.Fatalf("got %v, want a Configuration DaqError", err)
	}
}
