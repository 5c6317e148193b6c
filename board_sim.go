package daqcore

import "sync"

// simBackend provides an injectable FIFO of raw word blocks in place of
// real VME MBLT reads, so tests and demos don't need a real digitizer
// attached.
type simBackend struct {
	board *baseBoard

	mu     sync.Mutex
	queue  [][]uint32
	failAt int // if >0, the next ReadMBLT returns an I/O error and clears it
}

func newSimBackend(board *baseBoard) *simBackend {
	return &simBackend{board: board}
}

// Inject appends a raw word block to be returned by the next ReadMBLT
// call (FIFO order), the way a test drives a simulated board.
func (s *simBackend) Inject(words []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, words)
}

// InjectFailure arranges for the next readMBLT to report a hardware I/O
// error instead of returning data.
func (s *simBackend) InjectFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = len(s.queue) + 1
}

func (s *simBackend) readMBLT() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 {
		s.failAt = 0
		return nil, errf(KindHardware, "simulated MBLT read failure on board %d", s.board.desc.BoardID)
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	block := s.queue[0]
	s.queue = s.queue[1:]
	return block, nil
}

// simBoard is a bare V1724-shaped board with no variant-specific decode
// differences, used by tests and the "sim" type tag for exercising the
// Controller/Readout Loop/Formatter Worker pipeline without any real
// digitizer.
type simBoard struct {
	*baseBoard
	*simBackend
}

func newSimBoard(desc BoardDescriptor) *simBoard {
	b := &simBoard{baseBoard: newBaseBoard(desc, 10, 10, 8, 0, 48, 0)}
	b.simBackend = newSimBackend(b.baseBoard)
	return b
}

func (b *simBoard) UnpackEventHeader(words []uint32) (EventHeader, error) {
	return unpackEventHeader(words)
}

func (b *simBoard) UnpackChannelHeader(words []uint32, rollover int32, headerTime uint32, eventTime uint32, nChanSet int, localChan int) (ChannelHeader, int, error) {
	return unpackChannelHeader(words, rollover, headerTime, b.ClockCycleNS())
}

func (b *simBoard) ReadMBLT() ([]uint32, error) { return b.simBackend.readMBLT() }
