package daqcore

import (
	"sync/atomic"
	"time"
)

// ReadoutLoop drains one optical link's boards into a shared RawBuffer.
// One instance runs per link, in its own goroutine.
type ReadoutLoop struct {
	link   int
	boards []Board
	buf    *RawBuffer

	active   atomic.Bool
	iterCnt  uint64
	lastErrs map[int]error
}

// NewReadoutLoop builds a loop for the given optical link's boards,
// writing into buf.
func NewReadoutLoop(link int, boards []Board, buf *RawBuffer) *ReadoutLoop {
	return &ReadoutLoop{link: link, boards: boards, buf: buf, lastErrs: make(map[int]error)}
}

// Run executes the loop until Stop is called. Intended to be run in its
// own goroutine.
func (r *ReadoutLoop) Run() {
	r.active.Store(true)
	var local []DataPacket

	for r.active.Load() {
		local = local[:0]
		for _, b := range r.boards {
			words, err := b.ReadMBLT()
			if err != nil {
				// A failed MBLT read has nothing to release; skip this
				// board for the cycle.
				r.lastErrs[b.Descriptor().BoardID] = err
				continue
			}
			if len(words) == 0 {
				continue
			}

			hdr, err := b.UnpackEventHeader(words)
			var headerTime uint32
			if err == nil {
				headerTime = hdr.EventTime
			}
			clockCounter := b.Rollover().Observe(headerTime, time.Now().UnixNano())
			local = append(local, newDataPacket(b.Descriptor().BoardID, words, headerTime, clockCounter))
		}

		r.iterCnt++
		if r.iterCnt%10000 == 0 {
			r.logStatus()
		}

		if len(local) > 0 {
			r.buf.Append(local)
		}

		time.Sleep(time.Microsecond)
	}
}

func (r *ReadoutLoop) logStatus() {
	for _, b := range r.boards {
		reg, _ := b.ReadRegister(0x1100) // acquisition status register
		ProblemLogger.Printf("link %d board %d status=0x%x", r.link, b.Descriptor().BoardID, reg)
	}
}

// Stop signals the loop to exit after its current iteration.
func (r *ReadoutLoop) Stop() { r.active.Store(false) }

// LastError returns the most recent MBLT error observed for boardID, if
// any, primarily for tests.
func (r *ReadoutLoop) LastError(boardID int) error { return r.lastErrs[boardID] }
