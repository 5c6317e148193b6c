package daqcore

// v1724mvBoard models the CAEN V1724_MV: same clock/sample width as the
// plain V1724 but a different channel-header waveform packing (12-bit
// samples packed eight to every three words rather than two 16-bit
// samples per word). It overrides only UnpackChannelHeader; every other capability
// is inherited unchanged from the embedded baseBoard.
type v1724mvBoard struct {
	*baseBoard
	*simBackend
}

func newV1724MV(desc BoardDescriptor) *v1724mvBoard {
	b := &v1724mvBoard{
		baseBoard: newBaseBoard(desc, 10, 10, 8, 0, 48, 0),
	}
	b.simBackend = newSimBackend(b.baseBoard)
	return b
}

func (b *v1724mvBoard) UnpackEventHeader(words []uint32) (EventHeader, error) {
	return unpackEventHeader(words)
}

// UnpackChannelHeader unpacks 12-bit-packed samples: every 3 raw words
// hold 8 samples (24 bits each pair -> two 12-bit samples per 24 bits,
// 8 samples per 3 words). The timestamp/rollover arithmetic is
// unchanged from the base V1724 decode.
func (b *v1724mvBoard) UnpackChannelHeader(words []uint32, rollover int32, headerTime uint32, eventTime uint32, nChanSet int, localChan int) (ChannelHeader, int, error) {
	if len(words) < 2 {
		return ChannelHeader{}, 0, errf(KindInternal, "channel header needs at least 2 words, got %d", len(words))
	}
	chWords := words[0] & 0xFFFFFFF
	chTime := words[1] & 0x7FFFFFFF

	localRollover := rollover
	const lowThresh = uint32(5e8)
	const highThresh = uint32(15e8)
	if chTime > highThresh && headerTime < lowThresh && localRollover != 0 {
		localRollover--
	} else if chTime < lowThresh && headerTime > highThresh {
		localRollover++
	}
	ts := (int64(localRollover)<<31 + int64(chTime)) * b.ClockCycleNS()

	n := int(chWords) - 2
	if n < 0 {
		n = 0
	}
	if n > len(words)-2 {
		n = len(words) - 2
	}
	payload := words[2 : 2+n]
	waveform := make([]uint16, 0, (len(payload)/3)*8)
	for i := 0; i+2 < len(payload); i += 3 {
		var bits [3]uint64
		bits[0], bits[1], bits[2] = uint64(payload[i]), uint64(payload[i+1]), uint64(payload[i+2])
		// 96 bits total (3x32) hold 8 samples of 12 bits each.
		combined := bits[0] | bits[1]<<32
		for s := 0; s < 5; s++ {
			waveform = append(waveform, uint16((combined>>(uint(s)*12))&0xFFF))
		}
		tailBits := (bits[1] >> 28) | (bits[2] << 4)
		for s := 0; s < 3; s++ {
			waveform = append(waveform, uint16((tailBits>>(uint(s)*12))&0xFFF))
		}
	}

	return ChannelHeader{
		TimestampTicks: ts,
		Words:          chWords,
		Waveform:       waveform,
	}, 2 + n, nil
}

func (b *v1724mvBoard) ReadMBLT() ([]uint32, error) { return b.simBackend.readMBLT() }
