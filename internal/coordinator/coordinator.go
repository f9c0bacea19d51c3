// Package coordinator watches the stream of fetch attempts for a
// blocking pattern and, when one trips, pauses every worker and
// dispatches the configured response: warn and continue, abort the
// run, or prompt the operator.
package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/blockdetect"
	"github.com/mattn/go-isatty"
)

// BlockAction selects what the coordinator does once the detector trips.
type BlockAction string

const (
	ActionWarn  BlockAction = "warn"
	ActionAbort BlockAction = "abort"
	ActionPause BlockAction = "pause"
)

// AttemptReport is one worker's account of a single fetch outcome, fed
// to the coordinator's block detector.
type AttemptReport struct {
	URL        string
	Domain     string
	Success    bool
	StatusCode int
	Cause      string
}

const safetyTimeout = 300 * time.Second

// Coordinator is the single consumer of attempt reports. Report is safe
// to call from any number of worker goroutines; Run must only be called
// once.
type Coordinator struct {
	gate       *PauseGate
	detector   *blockdetect.Detector
	action     BlockAction
	autoResume time.Duration
	quiet      bool

	stderr     io.Writer
	stdin      *bufio.Reader
	isTerminal func() bool

	queueMu sync.Mutex
	queue   []AttemptReport
	closed  bool
	notify  chan struct{}

	aborted   chan struct{}
	abortOnce sync.Once

	onBlockTrip func()
}

// Option customizes a Coordinator, primarily for tests that need to
// substitute stdio or the terminal check.
type Option func(*Coordinator)

// WithIO redirects the operator-facing prompt to stderr/stdin
// substitutes, for tests.
func WithIO(stderr io.Writer, stdin io.Reader) Option {
	return func(c *Coordinator) {
		c.stderr = stderr
		c.stdin = bufio.NewReader(stdin)
	}
}

// WithTerminalCheck overrides the isatty check, for tests that want to
// force the interactive or headless path.
func WithTerminalCheck(f func() bool) Option {
	return func(c *Coordinator) { c.isTerminal = f }
}

// WithOnBlockTrip registers a callback invoked every time the block
// detector trips, before the configured action is dispatched. Used to
// feed an external counter (e.g. obsmetrics.Collector.RecordBlockTrip)
// without the coordinator itself depending on a metrics package.
func WithOnBlockTrip(f func()) Option {
	return func(c *Coordinator) { c.onBlockTrip = f }
}

// New creates a Coordinator. gate is the shared worker pause signal;
// detector accumulates the attempt window; action is the configured
// response to a detected block; autoResume bounds the interactive
// prompt's wait (0 waits indefinitely); quiet suppresses the prompt
// even on a terminal.
func New(gate *PauseGate, detector *blockdetect.Detector, action BlockAction, autoResume time.Duration, quiet bool, opts ...Option) *Coordinator {
	c := &Coordinator{
		gate:       gate,
		detector:   detector,
		action:     action,
		autoResume: autoResume,
		quiet:      quiet,
		stderr:     os.Stderr,
		stdin:      bufio.NewReader(os.Stdin),
		isTerminal: func() bool { return isatty.IsTerminal(os.Stdin.Fd()) },
		notify:     make(chan struct{}, 1),
		aborted:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report enqueues an attempt for the coordinator to process. The queue
// is unbounded so a slow or paused coordinator never back-pressures the
// workers that are waiting on the very pause signal it controls.
func (c *Coordinator) Report(report AttemptReport) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, report)
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Close signals that no further reports will arrive; Run drains any
// remaining queued reports and then returns.
func (c *Coordinator) Close() {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.notify)
}

// Aborted is closed once a block-action of abort (or a prompt choice of
// "quit") has been dispatched.
func (c *Coordinator) Aborted() <-chan struct{} { return c.aborted }

func (c *Coordinator) dequeue() (AttemptReport, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return AttemptReport{}, false
	}
	report := c.queue[0]
	c.queue = c.queue[1:]
	return report, true
}

// Run consumes reports until Close is called and the queue drains, or
// ctx is cancelled. A deferred cleanup always leaves the gate open so
// no worker is stranded if the coordinator exits unexpectedly.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.gate.Set()

	for {
		if report, ok := c.dequeue(); ok {
			if c.handle(ctx, report) {
				return
			}
			continue
		}

		select {
		case _, open := <-c.notify:
			if !open {
				for {
					report, ok := c.dequeue()
					if !ok {
						return
					}
					if c.handle(ctx, report) {
						return
					}
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// handle folds one report into the detector and, if it trips, dispatches
// the configured action. It returns true if the coordinator should stop.
func (c *Coordinator) handle(ctx context.Context, report AttemptReport) bool {
	c.detector.RecordAttempt(report.URL, report.Domain, report.Success, report.StatusCode, report.Cause)

	blocked, stats := c.detector.IsLikelyBlocked()
	if !blocked {
		return false
	}

	c.gate.Clear()
	if c.onBlockTrip != nil {
		c.onBlockTrip()
	}
	c.printAlert(stats)

	stop := false
	switch c.action {
	case ActionAbort:
		fmt.Fprintln(c.stderr, "aborting crawl (block-action=abort)")
		c.abortOnce.Do(func() { close(c.aborted) })
		stop = true
	case ActionPause:
		stop = c.handlePausePrompt(ctx)
	case ActionWarn:
		fallthrough
	default:
		fmt.Fprintln(c.stderr, "continuing anyway (block-action=warn)")
		c.gate.Set()
	}

	c.detector.Reset()
	return stop
}

func (c *Coordinator) printAlert(stats blockdetect.Stats) {
	fmt.Fprintln(c.stderr, strings.Repeat("=", 70))
	fmt.Fprintln(c.stderr, "IP BLOCKING DETECTED")
	fmt.Fprintln(c.stderr, strings.Repeat("=", 70))
	fmt.Fprintf(c.stderr, "  %d/%d recent attempts blocked (%.0f%%)\n",
		stats.BlockingFailures, stats.TotalAttempts, stats.BlockingRate*100)
	fmt.Fprintf(c.stderr, "  %d different domains affected\n", stats.UniqueDomains)
	fmt.Fprintf(c.stderr, "  affected domains: %s\n", strings.Join(stats.AffectedDomains, ", "))
	fmt.Fprintf(c.stderr, "  %d URLs queued for potential retry\n", stats.RetryQueueSize)
	fmt.Fprintln(c.stderr, strings.Repeat("=", 70))
}

// handlePausePrompt runs the interactive continue/quit prompt, or
// auto-resumes immediately when non-interactive or quiet. It returns
// true if the operator chose to quit.
func (c *Coordinator) handlePausePrompt(ctx context.Context) bool {
	if c.quiet || !c.isTerminal() {
		fmt.Fprintln(c.stderr, "block detected but running in quiet/headless mode; auto-resuming")
		c.gate.Set()
		return false
	}

	fmt.Fprintln(c.stderr, "\nCRAWL PAUSED - blocking detected")
	fmt.Fprintln(c.stderr, "Options:")
	fmt.Fprintln(c.stderr, "  [c] Continue crawling from current position")
	fmt.Fprintln(c.stderr, "  [q] Quit gracefully (checkpoint saved)")
	if c.autoResume > 0 {
		fmt.Fprintf(c.stderr, "Auto-resume in %s if no input...\n", c.autoResume)
	}
	fmt.Fprint(c.stderr, "Your choice [c/q]: ")

	if c.readChoice(ctx) == "q" {
		fmt.Fprintln(c.stderr, "quitting gracefully (checkpoint saved)")
		c.abortOnce.Do(func() { close(c.aborted) })
		return true
	}

	fmt.Fprintln(c.stderr, "resuming crawl")
	c.gate.Set()
	return false
}

func (c *Coordinator) readChoice(ctx context.Context) string {
	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 1)
	go func() {
		line, err := c.stdin.ReadString('\n')
		lines <- readResult{line: line, err: err}
	}()

	if c.autoResume <= 0 {
		result := <-lines
		return normalizeChoice(result.line)
	}

	timer := time.NewTimer(c.autoResume)
	defer timer.Stop()

	select {
	case result := <-lines:
		return normalizeChoice(result.line)
	case <-timer.C:
		fmt.Fprintln(c.stderr, "\nauto-resuming (timeout)")
		return "c"
	case <-ctx.Done():
		return "c"
	}
}

func normalizeChoice(raw string) string {
	choice := strings.ToLower(strings.TrimSpace(raw))
	if choice == "q" {
		return "q"
	}
	return "c"
}
