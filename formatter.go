package daqcore

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/oklog/ulid/v2"
)

// FormatterOptions bundles the per-worker knobs needed beyond
// ChunkOptions: run naming, output location, compressor choice.
type FormatterOptions struct {
	Chunk      ChunkOptions
	OutputRoot string
	RunName    string
	Hostname   string
	ThreadID   int
	Compressor string
}

// FormatterWorker is one of the N-per-host workers that pulls data
// packets off the shared RawBuffer, decodes them into fragments, routes
// fragments into its own Chunker, and flushes completed chunks through
// a Compressor + Writer.
type FormatterWorker struct {
	id      int
	opts    FormatterOptions
	boards  map[int]Board // keyed by BoardID, for decode constants
	buf     *RawBuffer
	chunker *Chunker
	writer  *Writer
	comp    Compressor

	failCounters map[int]*atomic.Int64 // per board
	errored      atomic.Bool

	dpcMu          sync.Mutex
	dataPerChannel map[int16]int64 // bytes decoded, by global channel

	bufMu         sync.Mutex
	bufferCounter map[int]int64 // bytes consumed from the raw buffer, by board
}

// NewFormatterWorker constructs worker id (1..N) reading from buf and
// writing under opts.OutputRoot/opts.RunName.
func NewFormatterWorker(id int, opts FormatterOptions, boards []Board, buf *RawBuffer) (*FormatterWorker, error) {
	comp, err := NewCompressor(opts.Compressor)
	if err != nil {
		return nil, err
	}
	boardsByID := make(map[int]Board, len(boards))
	failCounters := make(map[int]*atomic.Int64, len(boards))
	for _, b := range boards {
		boardsByID[b.Descriptor().BoardID] = b
		failCounters[b.Descriptor().BoardID] = &atomic.Int64{}
	}
	runDir := filepath.Join(opts.OutputRoot, opts.RunName)
	return &FormatterWorker{
		id:             id,
		opts:           opts,
		boards:         boardsByID,
		buf:            buf,
		chunker:        NewChunker(opts.Chunk),
		writer:         NewWriter(runDir, opts.Hostname, opts.ThreadID, comp),
		comp:           comp,
		failCounters:   failCounters,
		dataPerChannel: make(map[int16]int64),
		bufferCounter:  make(map[int]int64),
	}, nil
}

// Run is the worker's main loop: wait for a packet, process it, flush
// completed chunks, repeat; on shutdown, drain and call End.
func (w *FormatterWorker) Run() {
	for {
		pkt, ok := w.buf.Wait()
		if !ok {
			break
		}
		w.processPacket(pkt)
		w.flush()
	}
	// drain whatever arrived between the last Wait and Shutdown.
	for {
		pkt, ok := w.buf.TryTake()
		if !ok {
			break
		}
		w.processPacket(pkt)
	}
	w.End()
}

// FailCount reports the current fail counter for boardID, used by
// status snapshots and tests.
func (w *FormatterWorker) FailCount(boardID int) int64 {
	if c, ok := w.failCounters[boardID]; ok {
		return c.Load()
	}
	return 0
}

// SnapshotDataPerChannel returns the accumulated decoded-byte count per
// global channel and resets the map, all under one lock, as required of
// every per-worker counter the Status Updater reads.
func (w *FormatterWorker) SnapshotDataPerChannel() map[int16]int64 {
	w.dpcMu.Lock()
	defer w.dpcMu.Unlock()
	out := make(map[int16]int64, len(w.dataPerChannel))
	for ch, n := range w.dataPerChannel {
		out[ch] = n
		delete(w.dataPerChannel, ch)
	}
	return out
}

func (w *FormatterWorker) addChannelBytes(globalCh int16, n int64) {
	w.dpcMu.Lock()
	w.dataPerChannel[globalCh] += n
	w.dpcMu.Unlock()
}

// SnapshotBufferCounter returns the accumulated raw-buffer byte count per
// board and resets the map under one lock.
func (w *FormatterWorker) SnapshotBufferCounter() map[int]int64 {
	w.bufMu.Lock()
	defer w.bufMu.Unlock()
	out := make(map[int]int64, len(w.bufferCounter))
	for bid, n := range w.bufferCounter {
		out[bid] = n
		delete(w.bufferCounter, bid)
	}
	return out
}

func (w *FormatterWorker) addBufferBytes(boardID int, n int64) {
	w.bufMu.Lock()
	w.bufferCounter[boardID] += n
	w.bufMu.Unlock()
}

// Errored reports whether this worker has hit a fatal (Configuration or
// similar) error, consumed by Controller.CheckErrors.
func (w *FormatterWorker) Errored() bool { return w.errored.Load() }

// processPacket parses the events in one data packet's raw words.
func (w *FormatterWorker) processPacket(pkt DataPacket) {
	board, ok := w.boards[pkt.BoardID]
	if !ok {
		ProblemLogger.Printf("worker %d: no board registered for id %d", w.id, pkt.BoardID)
		return
	}

	words := pkt.Buff
	i := 0
	for i < len(words) {
		if words[i]>>28 != 0xA {
			// Missed event marker: scan forward to the next 0xA-tagged
			// word, log once, dump the block for offline inspection.
			ProblemLogger.Printf("worker %d: missed event marker at word %d of board %d block, scanning for recovery", w.id, i, pkt.BoardID)
			w.dumpMissed(pkt)
			i++
			for i < len(words) && words[i]>>28 != 0xA {
				i++
			}
			continue
		}

		hdr, err := board.UnpackEventHeader(words[i:])
		if err != nil || int(hdr.Words) == 0 {
			i++
			continue
		}
		end := i + int(hdr.Words)
		if end > len(words) {
			end = len(words)
		}

		if hdr.BoardFail {
			w.emitDeadtime(board, pkt, hdr)
			w.failCounters[pkt.BoardID].Add(1)
		} else {
			w.processEvent(board, pkt, hdr, words[i:end])
		}

		w.addBufferBytes(pkt.BoardID, int64(end-i)*4)

		if end <= i {
			break
		}
		i = end
	}
}

// dumpMissed writes the offending block to <run>_missed, suffixed with
// a ULID so concurrent workers/events never collide on the filename.
func (w *FormatterWorker) dumpMissed(pkt DataPacket) {
	id := ulid.Make()
	name := fmt.Sprintf("%s_missed_%s", w.opts.RunName, id.String())
	path := filepath.Join(w.opts.OutputRoot, w.opts.RunName, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		ProblemLogger.Printf("worker %d: could not create dir for missed-event dump: %v", w.id, err)
		return
	}
	dump := spew.Sdump(pkt)
	if err := os.WriteFile(path, []byte(dump), 0o644); err != nil {
		ProblemLogger.Printf("worker %d: could not write missed-event dump: %v", w.id, err)
	}
}

// emitDeadtime produces the artificial-deadtime fragment on the board's
// designated dead-time channel, signaling one fragment-length dead
// interval starting at the event's rollover-corrected timestamp.
func (w *FormatterWorker) emitDeadtime(board Board, pkt DataPacket, hdr EventHeader) {
	samples := w.opts.Chunk.SamplesPerFragment()
	f := Fragment{
		Timestamp:       AbsoluteTime(pkt.ClockCounter, hdr.EventTime) * board.ClockCycleNS(),
		SamplesThisFrag: int32(samples),
		SampleWidthNS:   board.SampleWidthNS(),
		GlobalChannel:   int16(board.ArtificialDeadtimeChannel()),
		TotalSamples:    uint32(samples),
		FragmentIndex:   0,
		Baseline:        0,
		Waveform:        make([]uint16, samples),
	}
	w.routeAndMaybeWarn(f)
}

// processEvent fans an event out to its channels: skip the 4 header
// words, then for each set bit in the channel mask (LSB first) decode
// one channel.
func (w *FormatterWorker) processEvent(board Board, pkt DataPacket, hdr EventHeader, eventWords []uint32) {
	body := eventWords[4:]
	mask := hdr.ChannelMask
	nSet := bits.OnesCount32(mask)

	off := 0
	for ch := 0; ch < 32 && off < len(body); ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		chHdr, consumed, err := board.UnpackChannelHeader(body[off:], pkt.ClockCounter, pkt.HeaderTime, hdr.EventTime, nSet, ch)
		if err != nil {
			ProblemLogger.Printf("worker %d: channel header decode failed, board %d ch %d: %v", w.id, pkt.BoardID, ch, err)
			break
		}
		w.processChannel(board, pkt, ch, chHdr)
		off += consumed
	}
}

// processChannel applies the timestamp correction, looks up the global
// channel id, and splits the corrected waveform into fragments.
func (w *FormatterWorker) processChannel(board Board, pkt DataPacket, localCh int, ch ChannelHeader) {
	globalCh := globalChannelFor(board.Descriptor().BoardID, localCh, w.opts)
	if globalCh < 0 {
		// A missing channel mapping is fatal for the worker.
		ProblemLogger.Printf("worker %d: no channel map entry for board %d ch %d, aborting worker", w.id, board.Descriptor().BoardID, localCh)
		w.errored.Store(true)
		return
	}

	ts := ch.TimestampTicks - board.DelayPerChannelNS(localCh) - board.PreTriggerNS()
	baseline := ch.Baseline

	w.addChannelBytes(globalCh, int64(len(ch.Waveform))*2)

	frags := splitIntoFragments(ch.Waveform, w.opts.Chunk.SamplesPerFragment(), ts, board.SampleWidthNS(), globalCh, baseline)
	for _, f := range frags {
		w.routeAndMaybeWarn(f)
	}
}

// channelMapSource is the process-wide OptionStore consulted by
// globalChannelFor; both Controller.Arm and tests set it through
// SetChannelMapSource.
var channelMapSource *OptionStore

// SetChannelMapSource wires the OptionStore consulted by
// globalChannelFor. Called once during Controller.Arm.
func SetChannelMapSource(o *OptionStore) { channelMapSource = o }

func globalChannelFor(boardID, localCh int, _ FormatterOptions) int16 {
	if channelMapSource == nil {
		return -1
	}
	return channelMapSource.ChannelMap(boardID, localCh)
}

// routeAndMaybeWarn routes one fragment into the chunker and logs any
// phase/jump warning it raises.
func (w *FormatterWorker) routeAndMaybeWarn(f Fragment) {
	_, _, warning := w.chunker.Route(f)
	if warning != "" {
		ProblemLogger.Printf("worker %d: %s (chunk geometry)", w.id, warning)
	}
}

// flush writes out every chunk below the average-minus-buffer
// threshold, then guarantees grid completeness for everything older.
func (w *FormatterWorker) flush() {
	for _, id := range w.chunker.FlushableChunks() {
		if err := w.writeChunk(id); err != nil {
			ProblemLogger.Printf("worker %d: write chunk %d: %v", w.id, id, err)
		}
	}
	if min, _, ok := w.chunker.MinMaxSeen(); ok {
		avg := w.chunker.AverageChunk()
		backFrom := avg - w.opts.Chunk.BufferNumChunks
		if err := w.writer.CreateEmpty(backFrom, min); err != nil {
			ProblemLogger.Printf("worker %d: create_empty: %v", w.id, err)
		}
	}
}

// writeChunk writes one chunk id's normal bucket, and shares the
// overlap bucket's single compression pass between "<id>_post" and
// "<id+1>_pre" without recompressing.
func (w *FormatterWorker) writeChunk(id int64) error {
	normal, overlap := w.chunker.Take(id)

	if len(normal) > 0 {
		payload := concatFragments(normal, w.opts.Chunk.FragmentPayload)
		if err := w.writer.WriteFile(chunkName(id, ""), payload); err != nil {
			return err
		}
	}

	if len(overlap) > 0 {
		payload := concatFragments(overlap, w.opts.Chunk.FragmentPayload)
		compressed, skip, err := w.writer.CompressOnly(payload)
		if err != nil {
			return err
		}
		if !skip {
			if err := w.writer.WriteShared(compressed, chunkName(id, "_post"), chunkName(id+1, "_pre")); err != nil {
				return err
			}
		}
	}
	return nil
}

func concatFragments(frags []Fragment, payloadBytes int) []byte {
	full := FragmentHeaderSize + payloadBytes
	out := make([]byte, 0, full*len(frags))
	for _, f := range frags {
		out = append(out, f.Encode(payloadBytes)...)
	}
	return out
}

// End flushes every remaining chunk in descending order, backfills
// grid completeness, and writes the end-of-run sentinel file.
func (w *FormatterWorker) End() error {
	for _, id := range w.chunker.RemainingChunkIDs() {
		if err := w.writeChunk(id); err != nil {
			ProblemLogger.Printf("worker %d: end-of-run write chunk %d: %v", w.id, id, err)
		}
	}
	if min, max, ok := w.chunker.MinMaxSeen(); ok {
		if err := w.writer.CreateEmpty(max+1, min); err != nil {
			ProblemLogger.Printf("worker %d: end-of-run create_empty: %v", w.id, err)
		}
	}
	return w.writer.WriteEnd()
}
