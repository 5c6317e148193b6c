package daqcore

// v1724Board models the CAEN V1724 family: 14-bit, 100 MS/s digitizer,
// 8 channels, 10 ns clock cycle.
type v1724Board struct {
	*baseBoard
	*simBackend
}

func newV1724(desc BoardDescriptor) *v1724Board {
	b := &v1724Board{
		baseBoard: newBaseBoard(desc, 10, 10, 8, 0, 48, 0),
	}
	b.simBackend = newSimBackend(b.baseBoard)
	return b
}

func (b *v1724Board) UnpackEventHeader(words []uint32) (EventHeader, error) {
	return unpackEventHeader(words)
}

func (b *v1724Board) UnpackChannelHeader(words []uint32, rollover int32, headerTime uint32, eventTime uint32, nChanSet int, localChan int) (ChannelHeader, int, error) {
	return unpackChannelHeader(words, rollover, headerTime, b.ClockCycleNS())
}

func (b *v1724Board) ReadMBLT() ([]uint32, error) { return b.simBackend.readMBLT() }
