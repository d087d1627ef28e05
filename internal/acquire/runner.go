package acquire

import (
	"log/slog"
	"time"
)

// Result reports the outcome of one acquisition loop.
type Result struct {
	SessionID   string
	DeviceIndex int
	DeviceID    string
	Frames      uint64
	Err         error
}

// FrameFunc processes one fetched buffer. The buffer is only valid for the
// duration of the call.
type FrameFunc func(sessionID string, buf *Buffer)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Manager creates and tracks the sessions (required).
	Manager *Manager

	// FrameCount is the number of frames each loop fetches. Defaults to 10.
	FrameCount int

	// FetchTimeout bounds each individual fetch. Defaults to 1s.
	FetchTimeout time.Duration

	// Delay pauses between fetches (optional).
	Delay time.Duration

	// OnFrame is invoked for every fetched buffer (optional).
	OnFrame FrameFunc

	// Logger for loop progress. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Runner drives free-running acquisition loops, one goroutine per device,
// each owning its session exclusively. Loops communicate completion through
// a result value rather than shared state.
type Runner struct {
	opts   RunnerOptions
	logger *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts *RunnerOptions) *Runner {
	if opts == nil || opts.Manager == nil {
		panic("RunnerOptions with Manager is required")
	}

	o := *opts
	if o.FrameCount <= 0 {
		o.FrameCount = 10
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = time.Second
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{opts: o, logger: logger}
}

// Run executes one acquisition loop per device index concurrently and
// returns the results in argument order once every loop has finished.
func (r *Runner) Run(indices ...int) []Result {
	resultCh := make(chan struct {
		pos int
		res Result
	}, len(indices))

	for pos, index := range indices {
		go func(pos, index int) {
			resultCh <- struct {
				pos int
				res Result
			}{pos, r.runLoop(index)}
		}(pos, index)
	}

	results := make([]Result, len(indices))
	for range indices {
		item := <-resultCh
		results[item.pos] = item.res
	}
	return results
}

// RunAll runs one acquisition loop per enumerated device.
func (r *Runner) RunAll() []Result {
	devices := r.opts.Manager.Devices()
	indices := make([]int, len(devices))
	for i := range devices {
		indices[i] = i
	}
	return r.Run(indices...)
}

// runLoop is the per-device worker: create, start, fetch FrameCount
// buffers with scoped release, stop, destroy.
func (r *Runner) runLoop(deviceIndex int) Result {
	result := Result{DeviceIndex: deviceIndex}

	session, err := r.opts.Manager.Create(deviceIndex)
	if err != nil {
		result.Err = err
		return result
	}
	result.SessionID = session.ID()
	result.DeviceID = session.Device().ID

	if err := session.Start(); err != nil {
		result.Err = err
		_ = session.Destroy()
		return result
	}

	for i := 0; i < r.opts.FrameCount; i++ {
		err := session.WithFetch(r.opts.FetchTimeout, func(buf *Buffer) error {
			r.logger.Info("Fetched frame", "session_id", session.ID(),
				"device_id", result.DeviceID, "frame_id", buf.FrameID(), "nr", i)
			if r.opts.OnFrame != nil {
				r.opts.OnFrame(session.ID(), buf)
			}
			return nil
		})
		if err != nil {
			result.Err = err
			break
		}

		if r.opts.Delay > 0 {
			time.Sleep(r.opts.Delay)
		}
	}

	result.Frames = session.FetchedFrames()

	if err := session.Stop(); err != nil && result.Err == nil {
		result.Err = err
	}
	if err := session.Destroy(); err != nil && result.Err == nil {
		result.Err = err
	}
	return result
}
