package daqcore

import (
	"fmt"
	"sync"
	"time"

	"github.com/vme-daq/strax-reader/internal/rundb"
)

// ControllerState is one of the five Controller lifecycle states.
type ControllerState int32

// Controller lifecycle states.
const (
	Idle ControllerState = iota
	Arming
	Armed
	Running
	ErrorState
)

func (s ControllerState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Arming:
		return "Arming"
	case Armed:
		return "Armed"
	case Running:
		return "Running"
	case ErrorState:
		return "Error"
	default:
		return "Unknown"
	}
}

// preRegisters are the defensive register writes issued to every board
// immediately after construction during Arm.
var preRegisters = []struct{ Reg, Val uint32 }{
	{0xEF24, 0x1},
	{0xEF00, 0x30},
}

// Controller is the lifecycle state machine orchestrating Boards, the
// Readout Loops, and the Formatter Workers: a mutex-guarded state field
// plus a WaitGroup join on shutdown.
type Controller struct {
	opts *OptionStore

	stateLock sync.Mutex
	state     ControllerState

	boards    []Board
	byLink    map[int][]Board
	dacTable  DACTable
	readouts  []*ReadoutLoop
	workers   []*FormatterWorker
	buf       *RawBuffer
	runWG     sync.WaitGroup
	runName   string
	statusUpd *StatusUpdater
	db        *rundb.Conn
	armDelay  time.Duration
}

// NewController builds an idle Controller reading configuration from o.
func NewController(o *OptionStore) *Controller {
	return &Controller{opts: o, state: Idle, dacTable: make(DACTable), armDelay: 2 * time.Second}
}

// SetRunDB attaches a rundb connection that Arm/Start/Stop transitions
// and periodic status snapshots are recorded to. Optional: a nil or
// disconnected db silently disables persistence.
func (c *Controller) SetRunDB(db *rundb.Conn) { c.db = db }

// SetArmDelay overrides the settling delay Arm sleeps after board
// construction and before link initialization. Zero or negative is a
// no-op, keeping the current delay (2 seconds by default).
func (c *Controller) SetArmDelay(d time.Duration) {
	if d > 0 {
		c.armDelay = d
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() ControllerState {
	c.stateLock.Lock()
	defer c.stateLock.Unlock()
	return c.state
}

func (c *Controller) setState(s ControllerState) {
	c.stateLock.Lock()
	from := c.state
	c.state = s
	c.stateLock.Unlock()
	if c.db != nil {
		c.db.RecordTransition(rundb.StateTransition{
			RunName:   c.runName,
			From:      from.String(),
			To:        s.String(),
			Timestamp: time.Now(),
		})
	}
}

// Arm constructs and initializes every configured board for boardType
// and host, calibrates baselines per link, and transitions to Armed.
// Callable again on an already-Armed controller; re-arming simply
// repeats the construction and calibration sequence.
func (c *Controller) Arm(boardType, host string) error {
	c.setState(Arming)

	descs, err := c.opts.GetBoards(boardType, host)
	if err != nil {
		c.setState(Idle)
		return errf(KindConfiguration, "arm: %w", err)
	}
	if len(descs) == 0 {
		c.setState(Idle)
		return errf(KindConfiguration, "arm: no boards configured for type=%s host=%s", boardType, host)
	}

	boards := make([]Board, 0, len(descs))
	byLink := make(map[int][]Board)
	for _, d := range descs {
		b, err := NewBoard(d)
		if err != nil {
			c.setState(Idle)
			return errf(KindConfiguration, "arm: construct board %d: %w", d.BoardID, err)
		}
		if err := b.Init(d.Link, d.Crate, d.BoardID, d.VMEAddress); err != nil {
			c.setState(Idle)
			return errf(KindHardware, "arm: init board %d: %w", d.BoardID, err)
		}
		for _, r := range preRegisters {
			if err := b.WriteRegister(r.Reg, r.Val); err != nil {
				c.setState(Idle)
				return errf(KindHardware, "arm: pre-register board %d: %w", d.BoardID, err)
			}
		}
		boards = append(boards, b)
		byLink[d.Link] = append(byLink[d.Link], b)
	}

	// Settling delay: boards need time after the pre-registers land
	// before link initialization can read back a stable state.
	time.Sleep(c.armDelay)

	var wg sync.WaitGroup
	errs := make(chan error, len(byLink))
	for link, linkBoards := range byLink {
		wg.Add(1)
		go func(link int, lb []Board) {
			defer wg.Done()
			if err := c.initLink(link, lb); err != nil {
				errs <- err
			}
		}(link, linkBoards)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			c.setState(Idle)
			return err
		}
	}

	c.opts.UpdateDAC(c.dacTable)

	runStart := c.opts.GetInt("run_start", 0)
	for _, b := range boards {
		if runStart == 1 {
			if err := b.SINStart(); err != nil {
				c.setState(Idle)
				return errf(KindHardware, "arm: sin start board %d: %w", b.Descriptor().BoardID, err)
			}
		} else {
			if err := b.AcquisitionStop(); err != nil {
				c.setState(Idle)
				return errf(KindHardware, "arm: defensive stop board %d: %w", b.Descriptor().BoardID, err)
			}
		}
	}

	time.Sleep(1 * time.Second)

	c.boards = boards
	c.byLink = byLink
	c.runName = runNameFromOptions(c.opts)
	SetChannelMapSource(c.opts)

	c.setState(Armed)
	return nil
}

// initLink runs the per-board baseline calibration for one link's boards.
func (c *Controller) initLink(link int, boards []Board) error {
	mode := c.opts.GetString("baseline_dac_mode", "fixed")
	nominal := c.opts.GetInt("baseline_value", 16000)
	fixedVal := uint16(c.opts.GetLong("baseline_fixed_value", 0x0FA0))

	switch mode {
	case "fit", "cached", "fixed":
	default:
		ProblemLogger.Printf("link %d: unknown baseline_dac_mode %q, falling back to fixed", link, mode)
		mode = "fixed"
	}

	for _, b := range boards {
		bid := b.Descriptor().BoardID
		row := c.opts.GetDACRow(bid)
		var dac [16]uint16

		switch mode {
		case "fit":
			rc := -1
			for attempt := 0; attempt < 5; attempt++ {
				rc = b.ConfigureBaselines(&dac, row, nominal, 50, true)
				if rc != -1 {
					break
				}
			}
			if rc == -2 {
				c.setState(ErrorState)
				return errf(KindHardware, "link %d: board %d baseline fit hard failure", link, bid)
			}
			if rc != 0 {
				return errf(KindHardware, "link %d: board %d baseline fit did not converge after retries", link, bid)
			}
		case "cached":
			rc := b.ConfigureBaselines(&dac, row, nominal, 1, false)
			if rc != 0 {
				return errf(KindHardware, "link %d: board %d cached baseline application failed", link, bid)
			}
		case "fixed":
			for i := range dac {
				dac[i] = fixedVal
			}
		}

		regs, err := c.opts.GetRegisters(bid)
		if err != nil {
			return errf(KindConfiguration, "link %d: board %d registers: %w", link, bid, err)
		}
		for _, r := range regs {
			reg, val, err := r.AsUint32()
			if err != nil {
				return errf(KindConfiguration, "link %d: board %d register: %w", link, bid, err)
			}
			if err := b.WriteRegister(reg, val); err != nil {
				return errf(KindHardware, "link %d: board %d write register 0x%x: %w", link, bid, reg, err)
			}
		}

		if err := b.LoadDAC(dac, 0xFFFF); err != nil {
			return errf(KindHardware, "link %d: board %d load dac: %w", link, bid, err)
		}
		c.dacTable[bid] = row
	}
	return nil
}

// Start transitions Armed -> Running: starts acquisition on every board,
// then launches the Readout Loops, Formatter Workers, and Status Updater.
func (c *Controller) Start() error {
	if c.Status() != Armed {
		return errf(KindInternal, "start: controller not Armed (state=%s)", c.Status())
	}

	runStart := c.opts.GetInt("run_start", 0)
	if runStart == 0 {
		for _, b := range c.boards {
			if err := b.EnsureReady(10, 100); err != nil {
				return errf(KindTimeout, "start: board %d not ready: %w", b.Descriptor().BoardID, err)
			}
		}
		for _, b := range c.boards {
			if err := b.SoftwareStart(); err != nil {
				return errf(KindHardware, "start: board %d software start: %w", b.Descriptor().BoardID, err)
			}
		}
		for _, b := range c.boards {
			if err := b.EnsureStarted(10, 100); err != nil {
				return errf(KindTimeout, "start: board %d did not reach started: %w", b.Descriptor().BoardID, err)
			}
		}
	}

	c.buf = NewRawBuffer()

	nWorkers := c.opts.GetNestedInt(fmt.Sprintf("processing_threads.%s", c.opts.Hostname()), 8)
	outputRoot := c.opts.GetString("strax_output_path", "./")
	compressorName := c.opts.GetString("compressor", "lz4")

	chunkOpts := ChunkOptions{
		ChunkLengthNS:   int64(c.opts.GetDouble("strax_chunk_length", 5) * 1e9),
		ChunkOverlapNS:  int64(c.opts.GetDouble("strax_chunk_overlap", 0.5) * 1e9),
		PhaseLimit:      c.opts.GetLong("strax_chunk_phase_limit", 2),
		BufferNumChunks: c.opts.GetLong("strax_buffer_num_chunks", 2),
		FragmentPayload: c.opts.GetInt("strax_fragment_payload_bytes", 220),
	}

	c.workers = make([]*FormatterWorker, 0, nWorkers)
	for i := 1; i <= nWorkers; i++ {
		fo := FormatterOptions{
			Chunk:      chunkOpts,
			OutputRoot: outputRoot,
			RunName:    c.runName,
			Hostname:   c.opts.Hostname(),
			ThreadID:   i,
			Compressor: compressorName,
		}
		w, err := NewFormatterWorker(i, fo, c.boards, c.buf)
		if err != nil {
			return errf(KindConfiguration, "start: worker %d: %w", i, err)
		}
		c.workers = append(c.workers, w)
	}

	c.readouts = make([]*ReadoutLoop, 0, len(c.byLink))
	for link, boards := range c.byLink {
		rl := NewReadoutLoop(link, boards, c.buf)
		c.readouts = append(c.readouts, rl)
	}

	c.statusUpd = NewStatusUpdater(c)

	for _, rl := range c.readouts {
		c.runWG.Add(1)
		go func(rl *ReadoutLoop) { defer c.runWG.Done(); rl.Run() }(rl)
	}
	for _, w := range c.workers {
		c.runWG.Add(1)
		go func(w *FormatterWorker) { defer c.runWG.Done(); w.Run() }(w)
	}
	c.statusUpd.Start()

	c.setState(Running)
	return nil
}

// Stop transitions any state -> Idle: stops acquisition on every board,
// then tears down the Readout Loops, Formatter Workers, and Status
// Updater and waits for them to exit.
func (c *Controller) Stop() error {
	for _, b := range c.boards {
		if err := b.AcquisitionStop(); err != nil {
			ProblemLogger.Printf("stop: board %d acquisition stop: %v", b.Descriptor().BoardID, err)
		}
	}
	for _, b := range c.boards {
		if err := b.EnsureStopped(10, 100); err != nil {
			ProblemLogger.Printf("stop: board %d did not confirm stop: %v", b.Descriptor().BoardID, err)
		}
	}

	for _, rl := range c.readouts {
		rl.Stop()
	}
	if c.statusUpd != nil {
		c.statusUpd.Stop()
	}
	if c.buf != nil {
		c.buf.Shutdown()
	}
	c.runWG.Wait()

	c.setState(Idle)
	return nil
}

// End stops the run, clears the Raw Buffer, and drops board handles.
func (c *Controller) End() error {
	if err := c.Stop(); err != nil {
		return err
	}
	if c.buf != nil {
		c.buf.Clear()
	}
	c.boards = nil
	c.byLink = nil
	c.workers = nil
	c.readouts = nil
	return nil
}

// CheckErrors surveys Formatter Workers; if any reports an error, state
// -> Error and returns true. Does not auto-stop the run; the caller
// decides whether to call Stop.
func (c *Controller) CheckErrors() bool {
	for _, w := range c.workers {
		if w.Errored() {
			c.setState(ErrorState)
			return true
		}
	}
	return false
}

func runNameFromOptions(o *OptionStore) string {
	n := o.GetLong("number", -1)
	if n < 0 {
		return "run"
	}
	return fmt.Sprintf("%06d", n)
}
