package daqcore

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/vme-daq/strax-reader/internal/rundb"
)

// StatusSnapshot is the periodic status document published by the
// Status Updater.
type StatusSnapshot struct {
	State           string        `json:"state"`
	BytesRead       int64         `json:"bytes_read"`
	BufferBytes     int64         `json:"buffer_bytes"`
	PerBoardBytes   map[int]int64 `json:"per_board_bytes"`
	PerChannelBytes map[int]int64 `json:"per_channel_bytes"`
	Timestamp       int64         `json:"timestamp"`
}

// StatusUpdater publishes a StatusSnapshot once a second over a ZMQ PUB
// socket (see DESIGN.md for why this uses github.com/pebbe/zmq4 rather
// than goczmq).
type StatusUpdater struct {
	ctrl *Controller

	bytesRead atomic.Int64
	active    atomic.Bool
	done      chan struct{}

	sock *zmq.Socket
}

// NewStatusUpdater builds an updater bound to ctrl's Raw Buffer and
// Formatter Workers for byte counters.
func NewStatusUpdater(ctrl *Controller) *StatusUpdater {
	return &StatusUpdater{ctrl: ctrl, done: make(chan struct{})}
}

// AddBytesRead accumulates the bytes-read counter the snapshot reports.
// The Readout Loop does not call it; the counter moves only when a
// caller adds to it.
func (s *StatusUpdater) AddBytesRead(n int64) { s.bytesRead.Add(n) }

// Start opens the PUB socket (best-effort: a bind failure only disables
// broadcast, it does not fail the run, since status publication is a
// diagnostic aid, not a correctness requirement) and begins the 1-second
// publish loop.
func (s *StatusUpdater) Start() {
	s.active.Store(true)
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		ProblemLogger.Printf("status updater: could not create PUB socket: %v", err)
	} else {
		addr := fmt.Sprintf("tcp://*:%d", Ports.Status)
		if err := sock.Bind(addr); err != nil {
			ProblemLogger.Printf("status updater: could not bind %s: %v", addr, err)
			sock.Close()
			sock = nil
		}
	}
	s.sock = sock

	go s.loop()
}

func (s *StatusUpdater) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.publishOnce()
		case <-s.done:
			return
		}
	}
}

func (s *StatusUpdater) snapshot() StatusSnapshot {
	snap := StatusSnapshot{
		State:           s.ctrl.Status().String(),
		BytesRead:       s.bytesRead.Swap(0),
		PerBoardBytes:   make(map[int]int64),
		PerChannelBytes: make(map[int]int64),
		Timestamp:       time.Now().UnixNano(),
	}
	if s.ctrl.buf != nil {
		snap.BufferBytes = s.ctrl.buf.TotalBytes()
	}
	for _, w := range s.ctrl.workers {
		for bid, n := range w.SnapshotBufferCounter() {
			snap.PerBoardBytes[bid] += n
		}
		for ch, n := range w.SnapshotDataPerChannel() {
			snap.PerChannelBytes[int(ch)] += n
		}
	}
	return snap
}

func (s *StatusUpdater) publishOnce() {
	snap := s.snapshot()

	body, err := json.Marshal(snap)
	if err != nil {
		ProblemLogger.Printf("status updater: marshal snapshot: %v", err)
		return
	}
	if s.sock != nil {
		if _, err := s.sock.SendBytes(body, 0); err != nil {
			ProblemLogger.Printf("status updater: publish: %v", err)
		}
	}
	if s.ctrl.db != nil {
		s.ctrl.db.RecordStatus(rundb.StatusRecord{
			RunName:     s.ctrl.runName,
			State:       snap.State,
			BytesRead:   snap.BytesRead,
			BufferBytes: snap.BufferBytes,
			Timestamp:   time.Now(),
		})
	}
}

// Stop halts the publish loop and closes the socket.
func (s *StatusUpdater) Stop() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	close(s.done)
	if s.sock != nil {
		s.sock.Close()
	}
}
