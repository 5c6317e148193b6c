package daqcore

import "fmt"

// EventHeader is the decoded fixed 4-word event header.
type EventHeader struct {
	Words       uint32 // total words in this event, including the header
	ChannelMask uint32 // one bit per local channel with data present
	BoardFail   bool
	EventTime   uint32 // 31-bit board clock at event start
}

// ChannelHeader is the decoded per-channel header plus its waveform.
// Waveform is a freshly allocated slice, independent of the caller's
// word slice.
type ChannelHeader struct {
	TimestampTicks int64 // unwrapped, in ns (ticks × clock cycle), before delay/pre-trigger correction
	Words          uint32
	Baseline       uint16
	Waveform       []uint16
}

// Board is the capability set every digitizer variant exposes.
// Variant-specific constants (sample width, clock cycle, dead-time
// channel, ...) are data on the concrete type, not new methods.
type Board interface {
	Descriptor() BoardDescriptor

	Init(link, crate, board int, vmeAddress uint32) error
	WriteRegister(reg, val uint32) error
	ReadRegister(reg uint32) (uint32, error)

	// ReadMBLT performs one multi-block VME transfer read of the board's
	// FIFO. Returns the raw words and nil on success, nil words and a
	// negative-signalling error on I/O failure, or a zero-length, nil-error
	// slice when the FIFO is empty.
	ReadMBLT() ([]uint32, error)

	ConfigureBaselines(dac *[16]uint16, cal DACRow, nominal int, maxIter int, calibrate bool) int
	LoadDAC(dac [16]uint16, mask uint16) error

	SINStart() error
	SoftwareStart() error
	AcquisitionStop() error
	EnsureReady(retries int, interval int) error
	EnsureStarted(retries int, interval int) error
	EnsureStopped(retries int, interval int) error

	UnpackEventHeader(words []uint32) (EventHeader, error)
	UnpackChannelHeader(words []uint32, rollover int32, headerTime uint32, eventTime uint32, nChanSet int, localChan int) (ChannelHeader, int, error)

	SampleWidthNS() uint16
	ClockCycleNS() int64
	NChannels() int
	ArtificialDeadtimeChannel() int
	PreTriggerNS() int64
	DelayPerChannelNS(ch int) int64

	Rollover() *RolloverTracker
}

// ErrBoardFail signals an I/O-level hardware fault. ConfigureBaselines
// reports its own outcomes as plain ints (0/-1/-2) rather than errors;
// this sentinel is reserved for hardware faults elsewhere.
var ErrBoardFail = fmt.Errorf("board reported hardware fault")

// NewBoard constructs a Board of the variant named by desc.TypeTag.
// Recognized tags: "v1724", "v1730", "v1724mv", "sim". Unknown tags are a
// Configuration error.
func NewBoard(desc BoardDescriptor) (Board, error) {
	switch desc.TypeTag {
	case "v1724":
		return newV1724(desc), nil
	case "v1730":
		return newV1730(desc), nil
	case "v1724mv":
		return newV1724MV(desc), nil
	case "sim":
		return newSimBoard(desc), nil
	default:
		return nil, errf(KindConfiguration, "unknown board type tag %q", desc.TypeTag)
	}
}
