package daqcore

import "sync"

// RawBuffer is the many-producer/many-consumer queue of data packets
// shared between every Readout Loop and every Formatter Worker: all
// links append into it, and any idle worker may claim the next packet.
type RawBuffer struct {
	mu         sync.Mutex
	cv         *sync.Cond
	packets    []DataPacket
	totalBytes int64
	active     bool
}

// NewRawBuffer constructs an active, empty Raw Buffer.
func NewRawBuffer() *RawBuffer {
	rb := &RawBuffer{active: true}
	rb.cv = sync.NewCond(&rb.mu)
	return rb
}

// Append splices pkts into the buffer, updates the byte total, and wakes
// one waiting consumer.
func (rb *RawBuffer) Append(pkts []DataPacket) {
	if len(pkts) == 0 {
		return
	}
	rb.mu.Lock()
	rb.packets = append(rb.packets, pkts...)
	for _, p := range pkts {
		rb.totalBytes += int64(p.SizeBytes)
	}
	rb.mu.Unlock()
	rb.cv.Signal()
}

// TryTake is the non-blocking pop: returns the oldest packet and true,
// or a zero DataPacket and false if the buffer is empty. It always
// acquires the mutex rather than giving up under contention, since the
// held time here is O(1).
func (rb *RawBuffer) TryTake() (DataPacket, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.packets) == 0 {
		return DataPacket{}, false
	}
	p := rb.packets[0]
	rb.packets = rb.packets[1:]
	rb.totalBytes -= int64(p.SizeBytes)
	return p, true
}

// Wait blocks until the buffer is non-empty or the buffer has been
// deactivated via Shutdown, then behaves like TryTake. The second
// return value is false only when the buffer was shut down with no
// remaining packets — the Formatter Worker's drain-then-exit signal.
func (rb *RawBuffer) Wait() (DataPacket, bool) {
	rb.mu.Lock()
	for len(rb.packets) == 0 && rb.active {
		rb.cv.Wait()
	}
	if len(rb.packets) == 0 {
		rb.mu.Unlock()
		return DataPacket{}, false
	}
	p := rb.packets[0]
	rb.packets = rb.packets[1:]
	rb.totalBytes -= int64(p.SizeBytes)
	rb.mu.Unlock()
	return p, true
}

// Shutdown marks the buffer inactive and wakes every waiting consumer so
// they can drain the remainder and exit.
func (rb *RawBuffer) Shutdown() {
	rb.mu.Lock()
	rb.active = false
	rb.mu.Unlock()
	rb.cv.Broadcast()
}

// Clear discards all queued packets, used by Controller.End.
func (rb *RawBuffer) Clear() {
	rb.mu.Lock()
	rb.packets = nil
	rb.totalBytes = 0
	rb.mu.Unlock()
}

// TotalBytes reports the current queued byte count, consumed by the
// Status Updater.
func (rb *RawBuffer) TotalBytes() int64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.totalBytes
}
