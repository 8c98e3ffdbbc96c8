package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/vacc/internal/channels"
	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/lattice"
	"github.com/roach88/vacc/internal/logging"
)

// Host is the control-system channel sink the runtime publishes to and
// receives client writes from. *channels.Server implements it.
type Host interface {
	Put(name string, v float64) error
	PutMany(values map[string]float64) error
	OnWrite(name string, h channels.WriteHandler) error
}

// Recorder persists run and cycle history. *store.Store implements it.
type Recorder interface {
	WriteRun(ctx context.Context, run lattice.RunRecord) error
	WriteCycle(ctx context.Context, cycle lattice.CycleRecord) error
}

type nopRecorder struct{}

func (nopRecorder) WriteRun(context.Context, lattice.RunRecord) error     { return nil }
func (nopRecorder) WriteCycle(context.Context, lattice.CycleRecord) error { return nil }

// Status is a point-in-time view of a Runtime for launcher and monitoring
// tooling.
type Status struct {
	State       State     `json:"state"`
	RunID       string    `json:"run_id,omitempty"`
	WorkDir     string    `json:"work_dir,omitempty"`
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitzero"`
}

// Runtime is one virtual accelerator instance.
//
// Thread-safety model:
//   - Start, Stop, Status and the accessors: safe from any goroutine
//   - The cycle loop: exactly one goroutine, spawned by Start
//   - Setpoint ingestion: called by the Host from any goroutine
type Runtime struct {
	cfg      Config
	elements []lattice.Element
	registry *channels.Registry
	builder  *deck.Builder
	host     Host
	settings *liveSettings

	solver   Solver
	recorder Recorder
	rng      *rand.Rand
	base     *slog.Logger
	runIDs   RunIDGenerator
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	state       State
	runID       string
	workDir     string
	log         *slog.Logger
	plog        *logging.ProcessLog
	lastErr     error
	lastCycleAt time.Time
	subscribed  bool

	// publishMu orders setpoint echoes from ingestion against the
	// end-of-cycle publish.
	publishMu sync.Mutex

	cycles      atomic.Int64
	failures    atomic.Int64
	keepRunning atomic.Bool
	stop        chan struct{}
	cancel      context.CancelFunc
	done        chan struct{}

	// loop goroutine only
	warned map[string]struct{}
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithSolver replaces the subprocess solver built from Config.Solver.
func WithSolver(s Solver) Option {
	return func(r *Runtime) {
		r.solver = s
	}
}

// WithRecorder persists run and cycle history.
func WithRecorder(rec Recorder) Option {
	return func(r *Runtime) {
		r.recorder = rec
	}
}

// WithRand sets the jitter source. The runtime uses it from the cycle
// goroutine only.
func WithRand(rng *rand.Rand) Option {
	return func(r *Runtime) {
		r.rng = rng
	}
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.base = l
	}
}

// WithRunIDGenerator sets the run ID source. Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Runtime) {
		r.runIDs = g
	}
}

// WithCycleInterval sets a pause between successful cycles. Default: 0,
// cycles run back to back.
func WithCycleInterval(d time.Duration) Option {
	return func(r *Runtime) {
		r.interval = d
	}
}

// WithNow overrides the wall clock used for run and cycle timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New creates a Runtime in state NotStarted.
//
// New validates the configuration, rejects an empty layout and derives the
// channel registry; each failure is a CONFIG *RuntimeError. The elements
// and settings are copied.
func New(cfg Config, elements []lattice.Element, settings lattice.Settings, host Host, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, configError("layout has no elements")
	}
	if host == nil {
		return nil, configError("no control-system host")
	}
	builder, err := deck.NewBuilder(cfg.Integrator)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeConfig, Message: "deck builder", Err: err}
	}
	registry, err := channels.NewRegistry(elements)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeConfig, Message: "channel registry", Err: err}
	}

	r := &Runtime{
		cfg:      cfg,
		elements: append([]lattice.Element(nil), elements...),
		registry: registry,
		builder:  builder,
		host:     host,
		settings: newLiveSettings(settings),
		solver:   ProcessSolver{Command: cfg.Solver.Command},
		recorder: nopRecorder{},
		base:     slog.Default(),
		runIDs:   UUIDv7Generator{},
		now:      time.Now,
		state:    NotStarted,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		warned:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	r.log = r.base
	return r, nil
}

// Registry returns the channel registry of the layout.
func (r *Runtime) Registry() *channels.Registry { return r.registry }

// Start provisions the working directory, subscribes setpoint ingestion on
// every write channel and spawns the cycle loop.
//
// Start is only valid from NotStarted. If provisioning fails the runtime
// returns to NotStarted and may be started again.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != NotStarted {
		err := NewLifecycleError("start", r.state)
		r.mu.Unlock()
		return err
	}
	r.state = Starting
	r.mu.Unlock()

	runCtx, err := r.provision(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = NotStarted
		r.mu.Unlock()
		return err
	}

	r.keepRunning.Store(true)
	r.mu.Lock()
	r.state = Running
	log := r.log
	r.mu.Unlock()

	log.Info("runtime started",
		"run_id", r.runID,
		"work_dir", r.workDir,
		"elements", len(r.elements),
		"write_channels", len(r.registry.WriteChannels()))

	go r.loop(runCtx)
	return nil
}

func (r *Runtime) provision(ctx context.Context) (context.Context, error) {
	dir, err := createWorkDir(r.cfg.WorkRoot, r.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	plog, err := logging.OpenProcessLog(r.base, filepath.Join(dir, ProcessLogFile))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if !r.subscribed {
		for _, ch := range r.registry.WriteChannels() {
			if err := r.host.OnWrite(ch, r.ingest); err != nil {
				plog.Close()
				os.RemoveAll(dir)
				return nil, &RuntimeError{Code: ErrCodeConfig, Message: "subscribe setpoint ingestion", Err: err}
			}
		}
		r.subscribed = true
	}

	runID := r.runIDs.Generate()
	log := plog.With("run_id", runID)
	run := lattice.RunRecord{
		ID:         runID,
		Layout:     r.cfg.Layout,
		Integrator: int(r.cfg.Integrator),
		Elements:   len(r.elements),
		StartedAt:  r.now(),
	}
	if err := r.recorder.WriteRun(ctx, run); err != nil {
		log.Warn("record run failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	r.mu.Lock()
	r.runID = runID
	r.workDir = dir
	r.plog = plog
	r.log = log
	r.cancel = cancel
	r.mu.Unlock()
	return runCtx, nil
}

// Stop clears the keep-running flag and waits up to Config.Grace for the
// cycle loop to observe it. After the grace period the in-flight solver is
// cancelled. The working directory is then removed.
//
// Stop is only valid from Running.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if r.state != Running {
		err := NewLifecycleError("stop", r.state)
		r.mu.Unlock()
		return err
	}
	r.state = Stopping
	log := r.log
	r.mu.Unlock()

	r.keepRunning.Store(false)
	close(r.stop)

	grace := time.NewTimer(r.cfg.Grace)
	select {
	case <-r.done:
		grace.Stop()
	case <-grace.C:
		log.Warn("cycle still running after grace period, cancelling solver", "grace", r.cfg.Grace)
		r.cancel()
		<-r.done
	}
	r.cancel()

	var errs []error
	log.Info("runtime stopped", "cycles", r.cycles.Load(), "failures", r.failures.Load())

	// Ingestion may still log until the host closes; detach it from the
	// process log before closing the file.
	r.mu.Lock()
	dir := r.workDir
	plog := r.plog
	r.plog = nil
	r.log = r.base
	r.mu.Unlock()

	if plog != nil {
		if err := plog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		errs = append(errs, fmt.Errorf("remove working directory: %w", err))
	}

	r.mu.Lock()
	r.state = Stopped
	r.mu.Unlock()
	return errors.Join(errs...)
}

// State returns the lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsRunning reports whether the runtime is in state Running.
func (r *Runtime) IsRunning() bool { return r.State() == Running }

// LastError returns the error of the most recent cycle, nil if it
// succeeded or no cycle has run.
func (r *Runtime) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Settings returns a copy of the live settings.
func (r *Runtime) Settings() lattice.Settings {
	return r.settings.Clone()
}

// Done is closed when the cycle loop has exited.
func (r *Runtime) Done() <-chan struct{} { return r.done }

// Status returns the current lifecycle state and cycle health.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State:       r.state,
		RunID:       r.runID,
		WorkDir:     r.workDir,
		Cycles:      r.cycles.Load(),
		Failures:    r.failures.Load(),
		LastCycleAt: r.lastCycleAt,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// ingest is the setpoint ingestion handler subscribed on every write
// channel. It echoes the value to the paired RSET channel and stores the
// exact value in the live settings for the next snapshot.
func (r *Runtime) ingest(name string, v float64) {
	r.publishMu.Lock()
	if p, ok := r.registry.Pair(name); ok {
		if err := r.host.Put(p.Readback, v); err != nil {
			r.logger().Warn("echo setpoint failed", "channel", name, "error", err)
		}
	}
	r.settings.Set(name, v)
	r.publishMu.Unlock()
	r.logger().Debug("setpoint accepted", "channel", name, "value", v)
}

func (r *Runtime) logger() *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}

// loop runs cycles until the keep-running flag is cleared.
//
// A failed cycle is logged, recorded and retried after Config.RetryDelay.
func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)
	log := r.logger()

	for r.keepRunning.Load() {
		err := r.runCycle(ctx)
		if err != nil && r.keepRunning.Load() {
			log.Error("cycle failed", "cycle", r.cycles.Load(), "error", err, "retry_in", r.cfg.RetryDelay)
			if !r.sleep(r.cfg.RetryDelay) {
				return
			}
		} else if err == nil && r.interval > 0 {
			if !r.sleep(r.interval) {
				return
			}
		}
		runtime.Gosched()
	}
}

// sleep waits for d or until Stop is called. It returns false on Stop.
func (r *Runtime) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.keepRunning.Load()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.stop:
		return false
	}
}
