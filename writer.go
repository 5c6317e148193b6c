package daqcore

import (
	"fmt"
	"os"
	"path/filepath"
)

// chunkName zero-pads a chunk id to 6 decimal digits.
func chunkName(chunkID int64, suffix string) string {
	return fmt.Sprintf("%06d%s", chunkID, suffix)
}

// Writer atomically publishes compressed chunk files under outputRoot by
// writing to a temp directory and renaming into place.
type Writer struct {
	outputRoot string
	hostname   string
	threadID   int
	comp       Compressor
}

// NewWriter builds a Writer for one Formatter Worker (hostname+threadID
// identify this worker's output file within every chunk directory).
func NewWriter(outputRoot, hostname string, threadID int, comp Compressor) *Writer {
	return &Writer{outputRoot: outputRoot, hostname: hostname, threadID: threadID, comp: comp}
}

func (w *Writer) fileID() string { return fmt.Sprintf("%s_%d", w.hostname, w.threadID) }

// WriteFile compresses payload and atomically publishes it as fileName
// under outputRoot/fileName/<hostname>_<threadID>. If payload is empty
// the call is a no-op; CreateEmpty handles zero-length files explicitly
// so callers can tell "never written" from "written empty".
func (w *Writer) WriteFile(fileName string, payload []byte) error {
	compressed, sizeIn, err := w.comp.Compress(payload)
	if err != nil {
		ProblemLogger.Printf("compressor %s failed on %s: %v", w.comp.Name(), fileName, err)
		return w.writeEmpty(fileName)
	}
	if sizeIn == 0 {
		// "delete" compressor, or legitimately empty input: skip the
		// file entirely.
		return nil
	}
	return w.publish(fileName, compressed)
}

// WriteShared publishes the same already-compressed bytes under two or
// more file names without recompressing, so a chunk's overlap bucket
// can be written once and shared between `<C>_post` and `<C+1>_pre`.
func (w *Writer) WriteShared(compressed []byte, names ...string) error {
	if len(compressed) == 0 {
		return nil
	}
	for _, n := range names {
		if err := w.publish(n, compressed); err != nil {
			return err
		}
	}
	return nil
}

// CompressOnly runs the configured compressor without publishing,
// letting the caller fan the single compressed buffer out to both the
// `_post` and `_pre` file names via WriteShared.
func (w *Writer) CompressOnly(payload []byte) (compressed []byte, skip bool, err error) {
	out, sizeIn, err := w.comp.Compress(payload)
	if err != nil {
		ProblemLogger.Printf("compressor %s failed: %v", w.comp.Name(), err)
		return nil, true, nil
	}
	if sizeIn == 0 {
		return nil, true, nil
	}
	return out, false, nil
}

func (w *Writer) publish(fileName string, data []byte) error {
	tempDir := filepath.Join(w.outputRoot, fileName+"_temp")
	finalDir := filepath.Join(w.outputRoot, fileName)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return errf(KindIO, "mkdir %s: %w", tempDir, err)
	}
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return errf(KindIO, "mkdir %s: %w", finalDir, err)
	}

	tempPath := filepath.Join(tempDir, w.fileID())
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errf(KindIO, "write %s: %w", tempPath, err)
	}

	finalPath := filepath.Join(finalDir, w.fileID())
	if _, err := os.Stat(finalPath); err == nil {
		ProblemLogger.Printf("destination %s already exists, not overwriting (duplicate workload?)", finalPath)
		os.Remove(tempPath)
		return nil
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return errf(KindIO, "rename %s -> %s: %w", tempPath, finalPath, err)
	}
	return nil
}

func (w *Writer) writeEmpty(fileName string) error {
	return w.publish(fileName, nil)
}

// CreateEmpty guarantees grid completeness: for every chunk id strictly
// before backFrom, for each of the three logical file names, create
// this worker's file if it doesn't already exist.
func (w *Writer) CreateEmpty(backFrom, minSeen int64) error {
	for id := minSeen; id < backFrom; id++ {
		for _, name := range []string{chunkName(id, ""), chunkName(id, "_post"), chunkName(id+1, "_pre")} {
			if err := w.ensureExists(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) ensureExists(fileName string) error {
	finalDir := filepath.Join(w.outputRoot, fileName)
	finalPath := filepath.Join(finalDir, w.fileID())
	if _, err := os.Stat(finalPath); err == nil {
		return nil
	}
	return w.publish(fileName, nil)
}

// WriteEnd writes the end-of-run sentinel file.
func (w *Writer) WriteEnd() error {
	dir := filepath.Join(w.outputRoot, "THE_END")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errf(KindIO, "mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, w.fileID())
	if err := os.WriteFile(path, []byte("...my only friend\n"), 0o644); err != nil {
		return errf(KindIO, "write %s: %w", path, err)
	}
	return nil
}
