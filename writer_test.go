package daqcore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriterAtomicPublish(t *testing.T) {
	root := t.TempDir()
	comp, _ := NewCompressor("none")
	w := NewWriter(root, "host1", 1, comp)

	payload := []byte("chunk-payload-bytes")
	if err := w.WriteFile(chunkName(0, ""), payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	finalPath := filepath.Join(root, "000000", "host1_1")
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("expected published file at %s: %v", finalPath, err)
	}
	if string(data) != string(payload) {
		t.Fatalf("published content = %q, want %q", data, payload)
	}

	tempDir := filepath.Join(root, "000000_temp")
	if _, err := os.Stat(tempDir); err == nil {
		entries, _ := os.ReadDir(tempDir)
		if len(entries) != 0 {
			t.Fatalf("temp dir should be empty after successful rename, has %d entries", len(entries))
		}
	}
}

func TestWriterNeverOverwrites(t *testing.T) {
	root := t.TempDir()
	comp, _ := NewCompressor("none")
	w := NewWriter(root, "host1", 1, comp)

	if err := w.WriteFile(chunkName(0, ""), []byte("first")); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	if err := w.WriteFile(chunkName(0, ""), []byte("second")); err != nil {
		t.Fatalf("second WriteFile: %v", err)
	}

	finalPath := filepath.Join(root, "000000", "host1_1")
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read published file: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("content = %q, want %q (should not have been overwritten)", data, "first")
	}
}

// TestWriteSharedPreservesPrePostEquivalence checks that the bytes
// written to <C>_post/<w> equal the bytes written to <C+1>_pre/<w>.
func TestWriteSharedPreservesPrePostEquivalence(t *testing.T) {
	root := t.TempDir()
	comp, _ := NewCompressor("lz4")
	w := NewWriter(root, "host1", 1, comp)

	payload := []byte("overlap-fragment-bytes-shared-between-chunks")
	compressed, skip, err := w.CompressOnly(payload)
	if err != nil || skip {
		t.Fatalf("CompressOnly: err=%v skip=%v", err, skip)
	}
	if err := w.WriteShared(compressed, chunkName(0, "_post"), chunkName(1, "_pre")); err != nil {
		t.Fatalf("WriteShared: %v", err)
	}

	post, err := os.ReadFile(filepath.Join(root, "000000_post", "host1_1"))
	if err != nil {
		t.Fatalf("read _post file: %v", err)
	}
	pre, err := os.ReadFile(filepath.Join(root, "000001_pre", "host1_1"))
	if err != nil {
		t.Fatalf("read _pre file: %v", err)
	}
	if string(post) != string(pre) {
		t.Fatal("_post and _pre bytes differ, expected exact equivalence")
	}
}

func TestCreateEmptyGridCompleteness(t *testing.T) {
	root := t.TempDir()
	comp, _ := NewCompressor("none")
	w := NewWriter(root, "host1", 1, comp)

	if err := w.CreateEmpty(3, 0); err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}

	for id := int64(0); id < 3; id++ {
		for _, name := range []string{chunkName(id, ""), chunkName(id, "_post"), chunkName(id+1, "_pre")} {
			path := filepath.Join(root, name, "host1_1")
			if _, err := os.Stat(path); err != nil {
				t.Errorf("expected empty placeholder at %s: %v", path, err)
			}
		}
	}
}

func TestWriteEndSentinel(t *testing.T) {
	root := t.TempDir()
	comp, _ := NewCompressor("none")
	w := NewWriter(root, "host1", 1, comp)

	if err := w.WriteEnd(); err != nil {
		t.Fatalf("WriteEnd: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "THE_END", "host1_1"))
	if err != nil {
		t.Fatalf("read sentinel: %v", err)
	}
	if string(data) != "...my only friend\n" {
		t.Fatalf("sentinel content = %q", data)
	}
}
