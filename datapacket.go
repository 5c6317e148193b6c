package daqcore

// DataPacket carries one raw word block read from a single board's FIFO,
// enriched with the board's header time and clock-rollover count at the
// moment of the read. Owned by the Raw Buffer until claimed by exactly
// one Formatter Worker.
type DataPacket struct {
	Buff         []uint32
	SizeBytes    int
	BoardID      int
	HeaderTime   uint32
	ClockCounter int32
}

func newDataPacket(boardID int, buff []uint32, headerTime uint32, clockCounter int32) DataPacket {
	return DataPacket{
		Buff:         buff,
		SizeBytes:    len(buff) * 4,
		BoardID:      boardID,
		HeaderTime:   headerTime,
		ClockCounter: clockCounter,
	}
}
