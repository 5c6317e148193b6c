package daqcore

import (
	"testing"
	"time"
)

func TestRawBufferAppendAndTryTake(t *testing.T) {
	rb := NewRawBuffer()
	if _, ok := rb.TryTake(); ok {
		t.Fatal("TryTake on empty buffer should return ok=false")
	}

	rb.Append([]DataPacket{
		newDataPacket(1, []uint32{1, 2}, 0, 0),
		newDataPacket(2, []uint32{3, 4, 5}, 0, 0),
	})
	if got := rb.TotalBytes(); got != (2+3)*4 {
		t.Fatalf("TotalBytes = %d, want %d", got, (2+3)*4)
	}

	p1, ok := rb.TryTake()
	if !ok || p1.BoardID != 1 {
		t.Fatalf("first TryTake: got %+v, ok=%v", p1, ok)
	}
	p2, ok := rb.TryTake()
	if !ok || p2.BoardID != 2 {
		t.Fatalf("second TryTake: got %+v, ok=%v", p2, ok)
	}
	if _, ok := rb.TryTake(); ok {
		t.Fatal("buffer should be drained")
	}
}

func TestRawBufferWaitWakesOnAppend(t *testing.T) {
	rb := NewRawBuffer()
	result := make(chan DataPacket, 1)
	go func() {
		p, ok := rb.Wait()
		if ok {
			result <- p
		}
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Append([]DataPacket{newDataPacket(9, []uint32{1}, 0, 0)})

	select {
	case p := <-result:
		if p.BoardID != 9 {
			t.Fatalf("got board id %d, want 9", p.BoardID)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Append")
	}
}

func TestRawBufferWaitUnblocksOnShutdown(t *testing.T) {
	rb := NewRawBuffer()
	done := make(chan bool, 1)
	go func() {
		_, ok := rb.Wait()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Wait should report ok=false after shutdown with an empty buffer")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Shutdown")
	}
}

func TestRawBufferClear(t *testing.T) {
	rb := NewRawBuffer()
	rb.Append([]DataPacket{newDataPacket(1, []uint32{1, 2, 3}, 0, 0)})
	rb.Clear()
	if rb.TotalBytes() != 0 {
		t.Fatalf("TotalBytes after Clear = %d, want 0", rb.TotalBytes())
	}
	if _, ok := rb.TryTake(); ok {
		t.Fatal("buffer should be empty after Clear")
	}
}
