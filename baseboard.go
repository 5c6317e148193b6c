package daqcore

import "sync"

// baseBoard implements the register I/O, start/stop, and baseline
// calibration machinery shared by every V1724-family variant. Hardware
// access itself is mocked behind an in-memory register map so this core
// runs unmodified against the simulator used by tests (board_sim.go);
// a real VME backend would replace only the register read/write pair.
type baseBoard struct {
	desc BoardDescriptor

	mu        sync.Mutex
	registers map[uint32]uint32
	started   bool
	ready     bool

	rollover *RolloverTracker

	sampleWidthNS  uint16
	clockCycleNS   int64
	nChannels      int
	deadtimeChan   int
	preTriggerNS   int64
	delayPerChanNS int64
}

func newBaseBoard(desc BoardDescriptor, sampleWidthNS uint16, clockCycleNS int64, nChannels, deadtimeChan int, preTriggerNS, delayPerChanNS int64) *baseBoard {
	return &baseBoard{
		desc:           desc,
		registers:      make(map[uint32]uint32),
		rollover:       NewRolloverTracker(clockCycleNS),
		sampleWidthNS:  sampleWidthNS,
		clockCycleNS:   clockCycleNS,
		nChannels:      nChannels,
		deadtimeChan:   deadtimeChan,
		preTriggerNS:   preTriggerNS,
		delayPerChanNS: delayPerChanNS,
	}
}

func (b *baseBoard) Descriptor() BoardDescriptor { return b.desc }

func (b *baseBoard) Init(link, crate, board int, vmeAddress uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desc.Link, b.desc.Crate, b.desc.BoardID, b.desc.VMEAddress = link, crate, board, vmeAddress
	return nil
}

func (b *baseBoard) WriteRegister(reg, val uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registers[reg] = val
	return nil
}

func (b *baseBoard) ReadRegister(reg uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registers[reg], nil
}

func (b *baseBoard) SINStart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

func (b *baseBoard) SoftwareStart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

func (b *baseBoard) AcquisitionStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
	return nil
}

func (b *baseBoard) isStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *baseBoard) isReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// EnsureReady/EnsureStarted/EnsureStopped poll up to retries times,
// sleeping interval ms between polls. A real hardware backend would poll
// a status register; this base implementation treats "ready" as always
// true.
func (b *baseBoard) EnsureReady(retries int, interval int) error {
	return pollUntil(retries, interval, func() bool { return true })
}

func (b *baseBoard) EnsureStarted(retries int, interval int) error {
	return pollUntil(retries, interval, b.isStarted)
}

func (b *baseBoard) EnsureStopped(retries int, interval int) error {
	return pollUntil(retries, interval, func() bool { return !b.isStarted() })
}

func (b *baseBoard) SampleWidthNS() uint16          { return b.sampleWidthNS }
func (b *baseBoard) ClockCycleNS() int64            { return b.clockCycleNS }
func (b *baseBoard) NChannels() int                 { return b.nChannels }
func (b *baseBoard) ArtificialDeadtimeChannel() int { return b.deadtimeChan }
func (b *baseBoard) PreTriggerNS() int64            { return b.preTriggerNS }
func (b *baseBoard) DelayPerChannelNS(ch int) int64 { return b.delayPerChanNS }
func (b *baseBoard) Rollover() *RolloverTracker     { return b.rollover }

// LoadDAC writes the 16 per-channel DAC override values for channels set
// in mask. Real hardware would issue one register write per channel;
// this base implementation records them in the in-memory register map
// at dacRegisterBase+channel.
func (b *baseBoard) LoadDAC(dac [16]uint16, mask uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := 0; ch < 16; ch++ {
		if mask&(1<<ch) != 0 {
			b.registers[dacRegisterBase+uint32(ch)] = uint32(dac[ch])
		}
	}
	return nil
}

const dacRegisterBase = 0x1080

// unpackEventHeader decodes the fixed 4-word event header: word count in
// the low 28 bits of word 0, channel mask in the low byte of word 1, the
// board-fail flag at bit 26 of word 1, and the 31-bit event time in word 3.
func unpackEventHeader(words []uint32) (EventHeader, error) {
	if len(words) < 4 {
		return EventHeader{}, errf(KindInternal, "event header needs 4 words, got %d", len(words))
	}
	return EventHeader{
		Words:       words[0] & 0xFFFFFFF,
		ChannelMask: words[1] & 0xFF,
		BoardFail:   words[1]&0x4000000 != 0,
		EventTime:   words[3] & 0x7FFFFFFF,
	}, nil
}

// unpackChannelHeader decodes one channel header and its waveform, with
// a per-channel rollover correction: a channel's local 31-bit time can
// appear to have wrapped relative to the event header's time even when
// the board-level rollover counter hasn't advanced yet (or has advanced
// one step too early), because channels are read out slightly staggered.
// The fixup nudges the locally-used rollover count by ±1 when one of the
// channel time and header time is above 1.5e9 ticks and the other below
// 5e8 ticks.
func unpackChannelHeader(words []uint32, rollover int32, headerTime uint32, clockCycleNS int64) (ChannelHeader, int, error) {
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

	ts := (int64(localRollover)<<31 + int64(chTime)) * clockCycleNS

	n := int(chWords) - 2
	if n < 0 {
		n = 0
	}
	if n > len(words)-2 {
		n = len(words) - 2
	}
	waveform := make([]uint16, 0, n*2)
	for _, w := range words[2 : 2+n] {
		waveform = append(waveform, uint16(w&0xFFFF), uint16((w>>16)&0xFFFF))
	}

	return ChannelHeader{
		TimestampTicks: ts,
		Words:          chWords,
		Waveform:       waveform,
	}, 2 + n, nil
}
