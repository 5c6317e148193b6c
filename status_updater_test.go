package daqcore

import (
	"testing"

	"github.com/spf13/viper"
)

// TestStatusUpdaterPublishOnceWithoutSocket checks that publishOnce
// tolerates a nil PUB socket (bind failure or Start never called) and
// still resets the bytes-read counter and reads buffer/worker state.
func TestStatusUpdaterPublishOnceWithoutSocket(t *testing.T) {
	ctrl := NewController(NewOptionStore(nil, "host"))
	ctrl.buf = NewRawBuffer()
	ctrl.buf.Append([]DataPacket{newDataPacket(1, []uint32{1, 2, 3}, 0, 0)})
	ctrl.runName = "run"

	board := newV1724(BoardDescriptor{BoardID: 1, TypeTag: "v1724"})
	buf := NewRawBuffer()
	w, err := NewFormatterWorker(1, FormatterOptions{
		Chunk:      ChunkOptions{ChunkLengthNS: 5e9, ChunkOverlapNS: 5e8, FragmentPayload: 40},
		OutputRoot: t.TempDir(),
		RunName:    "run",
		Hostname:   "host",
		ThreadID:   1,
		Compressor: "none",
	}, []Board{board}, buf)
	if err != nil {
		t.Fatalf("NewFormatterWorker: %v", err)
	}
	ctrl.workers = []*FormatterWorker{w}

	v := viper.New()
	v.Set("channel_map.1.0", 0)
	SetChannelMapSource(NewOptionStore(v, "host"))
	defer SetChannelMapSource(nil)

	samples := make([]uint32, 10)
	words := eventWords(4+2+uint32(len(samples)), 0x1, 1000, 12, 2000, samples)
	w.processPacket(newDataPacket(1, words, 0, 0))

	upd := NewStatusUpdater(ctrl)
	upd.AddBytesRead(42)

	snap := upd.snapshot()
	if snap.PerBoardBytes[1] == 0 {
		t.Fatalf("PerBoardBytes[1] = %d, want nonzero after processing a packet", snap.PerBoardBytes[1])
	}
	if snap.PerChannelBytes[0] == 0 {
		t.Fatalf("PerChannelBytes[0] = %d, want nonzero after processing a packet", snap.PerChannelBytes[0])
	}

	upd.publishOnce() // must not panic with sock == nil

	if got := upd.bytesRead.Load(); got != 0 {
		t.Fatalf("bytesRead after publishOnce = %d, want 0 (Swap should reset it)", got)
	}
}
