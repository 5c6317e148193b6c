package daqcore

// v1730Board models the CAEN V1730: 14-bit, 500 MS/s, 16 channels, 2 ns
// clock cycle.
type v1730Board struct {
	*baseBoard
	*simBackend
}

func newV1730(desc BoardDescriptor) *v1730Board {
	b := &v1730Board{
		baseBoard: newBaseBoard(desc, 2, 2, 16, 0, 48, 0),
	}
	b.simBackend = newSimBackend(b.baseBoard)
	return b
}

func (b *v1730Board) UnpackEventHeader(words []uint32) (EventHeader, error) {
	return unpackEventHeader(words)
}

func (b *v1730Board) UnpackChannelHeader(words []uint32, rollover int32, headerTime uint32, eventTime uint32, nChanSet int, localChan int) (ChannelHeader, int, error) {
	return unpackChannelHeader(words, rollover, headerTime, b.ClockCycleNS())
}

func (b *v1730Board) ReadMBLT() ([]uint32, error) { return b.simBackend.readMBLT() }
