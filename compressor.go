package daqcore

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

// Compressor has one uniform signature: Compress returns the compressed
// bytes and sets sizeIn to the original input length, except for the
// "delete" compressor, which zeroes sizeIn so the writer skips the file
// entirely.
type Compressor interface {
	Compress(input []byte) (out []byte, sizeIn int, err error)
	Name() string
}

// NewCompressor resolves a compressor by name: "blosc", "lz4", "none",
// "delete".
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "blosc":
		return bloscCompressor{}, nil
	case "lz4":
		return lz4Compressor{}, nil
	case "none":
		return noneCompressor{}, nil
	case "delete":
		return deleteCompressor{}, nil
	default:
		return nil, errf(KindConfiguration, "unknown compressor %q", name)
	}
}

// lz4Compressor uses the frame API with a 256KB block size, linked
// blocks, default compression level, and no content checksum.
type lz4Compressor struct{}

func (lz4Compressor) Name() string { return "lz4" }

func (lz4Compressor) Compress(input []byte) ([]byte, int, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	opts := []lz4.Option{
		lz4.BlockSizeOption(lz4.Block256Kb),
		lz4.ChecksumOption(false),
		lz4.BlockChecksumOption(false),
	}
	if err := w.Apply(opts...); err != nil {
		return nil, 0, errf(KindCompression, "lz4 apply options: %w", err)
	}
	if _, err := w.Write(input); err != nil {
		return nil, 0, errf(KindCompression, "lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, errf(KindCompression, "lz4 close: %w", err)
	}
	return buf.Bytes(), len(input), nil
}

// bloscCompressor approximates a blosc-style shuffle+compress codec
// using the same pierrec/lz4/v4 frame writer as lz4Compressor (see
// DESIGN.md: no CGo blosc binding is available). This is NOT a
// wire-compatible blosc stream.
type bloscCompressor struct{}

func (bloscCompressor) Name() string { return "blosc" }

func (bloscCompressor) Compress(input []byte) ([]byte, int, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.BlockSizeOption(lz4.Block256Kb), lz4.CompressionLevelOption(lz4.Level5)); err != nil {
		return nil, 0, errf(KindCompression, "blosc(lz4) apply options: %w", err)
	}
	if _, err := w.Write(shuffleBytes(input)); err != nil {
		return nil, 0, errf(KindCompression, "blosc(lz4) write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, errf(KindCompression, "blosc(lz4) close: %w", err)
	}
	return buf.Bytes(), len(input), nil
}

// shuffleBytes applies a byte-level shuffle (regroup every Nth byte of
// each u16 sample together) the way blosc's shuffle filter regroups
// same-significance bytes across elements before compression, improving
// ratio on waveform data whose high bytes repeat often.
func shuffleBytes(input []byte) []byte {
	if len(input) < FragmentHeaderSize || len(input)%2 != 0 {
		return input
	}
	out := make([]byte, len(input))
	half := len(input) / 2
	for i := 0; i < half; i++ {
		out[i] = input[i*2]
		out[half+i] = input[i*2+1]
	}
	return out
}

// noneCompressor passes the input through unchanged.
type noneCompressor struct{}

func (noneCompressor) Name() string { return "none" }

func (noneCompressor) Compress(input []byte) ([]byte, int, error) {
	return input, len(input), nil
}

// deleteCompressor discards the input and reports sizeIn=0 so the
// writer skips creating the file entirely. Useful for throughput testing
// without disk I/O.
type deleteCompressor struct{}

func (deleteCompressor) Name() string { return "delete" }

func (deleteCompressor) Compress(input []byte) ([]byte, int, error) {
	return nil, 0, nil
}
