package daqcore

import "testing"

func TestUnpackEventHeaderMasks(t *testing.T) {
	words := []uint32{
		0xA0000010, // top nibble 0xA, words = 0x10 (low 28 bits)
		0x04000003, // channel_mask = 0x03, board_fail bit (0x4000000) set
		0x00000000,
		0x12345678 & 0x7FFFFFFF,
	}
	hdr, err := unpackEventHeader(words)
	if err != nil {
		t.Fatalf("unpackEventHeader: %v", err)
	}
	if hdr.Words != 0x10 {
		t.Errorf("Words = 0x%x, want 0x10", hdr.Words)
	}
	if hdr.ChannelMask != 0x03 {
		t.Errorf("ChannelMask = 0x%x, want 0x03", hdr.ChannelMask)
	}
	if !hdr.BoardFail {
		t.Error("BoardFail = false, want true")
	}
	if hdr.EventTime != 0x12345678 {
		t.Errorf("EventTime = 0x%x, want 0x12345678", hdr.EventTime)
	}
}

func TestUnpackEventHeaderNoFail(t *testing.T) {
	words := []uint32{0xA0000004, 0x00000001, 0, 100}
	hdr, err := unpackEventHeader(words)
	if err != nil {
		t.Fatalf("unpackEventHeader: %v", err)
	}
	if hdr.BoardFail {
		t.Error("BoardFail = true, want false")
	}
	if hdr.ChannelMask != 1 {
		t.Errorf("ChannelMask = %d, want 1", hdr.ChannelMask)
	}
}

func TestUnpackChannelHeaderBasic(t *testing.T) {
	// chWords=4 (header + 2 payload words -> 4 samples), chTime=1000
	words := []uint32{4, 1000, 0x00020001, 0x00040003}
	ch, consumed, err := unpackChannelHeader(words, 0, 500, 10)
	if err != nil {
		t.Fatalf("unpackChannelHeader: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	want := []uint16{1, 2, 3, 4}
	if len(ch.Waveform) != len(want) {
		t.Fatalf("waveform length = %d, want %d", len(ch.Waveform), len(want))
	}
	for i, s := range want {
		if ch.Waveform[i] != s {
			t.Errorf("waveform[%d] = %d, want %d", i, ch.Waveform[i], s)
		}
	}
	if ch.TimestampTicks != 1000*10 {
		t.Errorf("TimestampTicks = %d, want %d", ch.TimestampTicks, 1000*10)
	}
}

func TestUnpackChannelHeaderRolloverCorrection(t *testing.T) {
	// channel time in high band, header time in low band, nonzero rollover
	// -> local rollover decremented by one.
	words := []uint32{2, 1_600_000_000}
	ch, _, err := unpackChannelHeader(words, 1, 100_000_000, 10)
	if err != nil {
		t.Fatalf("unpackChannelHeader: %v", err)
	}
	wantTicks := (int64(0)<<31 + int64(1_600_000_000)) * 10
	if ch.TimestampTicks != wantTicks {
		t.Errorf("TimestampTicks = %d, want %d (rollover corrected to 0)", ch.TimestampTicks, wantTicks)
	}
}

func TestNewBoardUnknownTagIsConfigurationError(t *testing.T) {
	_, err := NewBoard(BoardDescriptor{TypeTag: "v9999"})
	if err == nil {
		t.Fatal("expected an error for an unknown type tag")
	}
	de, ok := err.(*DaqError)
	if !ok || de.Kind != KindConfiguration {
		t.Fatalf("got %v, want a Configuration DaqError", err)
	}
}

func TestSimBoardReadMBLT(t *testing.T) {
	b := newSimBoard(BoardDescriptor{BoardID: 1, TypeTag: "sim"})
	words, err := b.ReadMBLT()
	if err != nil || words != nil {
		t.Fatalf("empty queue: got words=%v err=%v", words, err)
	}

	b.Inject([]uint32{1, 2, 3})
	words, err = b.ReadMBLT()
	if err != nil {
		t.Fatalf("ReadMBLT: %v", err)
	}
	if len(words) != 3 {
		t.Fatalf("got %d words, want 3", len(words))
	}

	b.InjectFailure()
	b.Inject([]uint32{9})
	if _, err := b.ReadMBLT(); err == nil {
		t.Fatal("expected a simulated hardware error")
	}
}
