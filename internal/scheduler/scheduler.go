// Package scheduler runs the bounded worker pool that turns a list of
// input URLs into detect.Result/detect.Failure records: one
// retrydriver.Driver per worker, a single writer goroutine, and an
// optional coordinator goroutine for block detection.
package scheduler

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/checkpoint"
	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/domaingate"
	"github.com/whitehat-seo/hubspot-crawler/internal/fetcher"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/internal/obsmetrics"
	"github.com/whitehat-seo/hubspot-crawler/internal/progress"
	"github.com/whitehat-seo/hubspot-crawler/internal/retrydriver"
	"github.com/whitehat-seo/hubspot-crawler/internal/writer"
	"github.com/whitehat-seo/hubspot-crawler/pkg/limiter"
	"github.com/whitehat-seo/hubspot-crawler/pkg/timeutil"
)

/*
Scheduler is the sole control-plane authority of a run.

Responsibilities:
- Own the shared collaborators every worker needs (domain gate, rate
  limiter, sleeper, pause gate) and hand each worker its own
  retrydriver.Driver over them.
- Bound parallelism to Options.Concurrency.
- Single-consumer the result channel through one writer goroutine; a
  dead writer must not let workers block forever on a full channel.
- Feed attempt reports to the coordinator, when one is configured.
- Record the final crawl summary exactly once, via a CrawlFinalizer,
  even when Run exits early.

Workers never decide retry, continuation, or abort; that is entirely
retrydriver's and the coordinator's job. The scheduler only decides how
many workers run and what happens to what they produce.
*/

// Options configures a Scheduler's retry/pacing/concurrency policy.
// Per-run collaborators (the URL list, sink, checkpoint, coordinator,
// tracker) are passed to Run instead, since they're rebuilt per
// invocation rather than shared across runs.
type Options struct {
	Concurrency       int
	MaxPerDomain      int
	MaxRetries        int
	VariationsEnabled bool
	MaxVariations     int
	RandomSeed        int64
	UserAgent         string
	BaseDelay         time.Duration
	Jitter            time.Duration
	InsecureTLS       bool
}

// Scheduler holds the collaborators shared by every worker goroutine.
type Scheduler struct {
	fetcher        fetcher.Fetcher
	gate           *domaingate.Gate
	rateLimiter    limiter.RateLimiter
	sleeper        timeutil.Sleeper
	pauseGate      *coordinator.PauseGate
	metadataSink   metadata.MetadataSink
	crawlFinalizer metadata.CrawlFinalizer
	metrics        *obsmetrics.Collector

	concurrency       int
	maxRetries        int
	variationsEnabled bool
	maxVariations     int
	randomSeed        int64
}

// NewScheduler builds a production Scheduler: a real HTTP client with
// keep-alives disabled (spec.md §4.3's zero keep-alive pool), a real
// clock, and the shared gate/limiter/pause-gate every worker's driver
// will use.
func NewScheduler(opts Options, metadataSink metadata.MetadataSink, crawlFinalizer metadata.CrawlFinalizer, metrics *obsmetrics.Collector) *Scheduler {
	htmlFetcher := fetcher.NewHtmlFetcher(metadataSink)
	transport := &http.Transport{DisableKeepAlives: true}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		metadataSink.RecordError(time.Now(), "scheduler", "NewScheduler", metadata.CauseUnknown,
			"TLS certificate verification disabled by --insecure", nil)
	}
	httpClient := &http.Client{Transport: transport}
	htmlFetcher.Init(httpClient, opts.UserAgent)

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetRandomSeed(opts.RandomSeed)
	rateLimiter.SetBaseDelay(opts.BaseDelay)
	rateLimiter.SetJitter(opts.Jitter)
	sleeper := timeutil.NewRealSleeper()

	return NewSchedulerWithDeps(
		&htmlFetcher,
		domaingate.New(opts.MaxPerDomain),
		rateLimiter,
		&sleeper,
		coordinator.NewPauseGate(),
		metadataSink,
		crawlFinalizer,
		metrics,
		opts,
	)
}

// NewSchedulerWithDeps creates a Scheduler with injected collaborators,
// for tests that need fake fetchers, clocks, or rate limiters.
func NewSchedulerWithDeps(
	f fetcher.Fetcher,
	gate *domaingate.Gate,
	rateLimiter limiter.RateLimiter,
	sleeper timeutil.Sleeper,
	pauseGate *coordinator.PauseGate,
	metadataSink metadata.MetadataSink,
	crawlFinalizer metadata.CrawlFinalizer,
	metrics *obsmetrics.Collector,
	opts Options,
) *Scheduler {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		fetcher:           f,
		gate:              gate,
		rateLimiter:       rateLimiter,
		sleeper:           sleeper,
		pauseGate:         pauseGate,
		metadataSink:      metadataSink,
		crawlFinalizer:    crawlFinalizer,
		metrics:           metrics,
		concurrency:       concurrency,
		maxRetries:        opts.MaxRetries,
		variationsEnabled: opts.VariationsEnabled,
		maxVariations:     opts.MaxVariations,
		randomSeed:        opts.RandomSeed,
	}
}

// RunParams bundles the per-run collaborators the caller assembles: the
// URL list, the result sink, the checkpoint store, the optional block-
// detection coordinator, and the progress tracker/render style.
type RunParams struct {
	URLs          []string
	Sink          writer.Sink
	Checkpoint    *checkpoint.Store
	Coordinator   *coordinator.Coordinator
	Tracker       *progress.Tracker
	ProgressStyle progress.Style
}

// resultItem is the unit handed from a worker to the writer goroutine.
// Exactly one of result/failure is non-nil.
type resultItem struct {
	result  *detect.Result
	failure *detect.Failure
}

// Run dispatches params.URLs across Options.Concurrency workers, each
// driving its own retrydriver.Driver over the shared gate/limiter/pause
// gate, and returns once every URL has been attempted (or the run was
// aborted). Exactly one goroutine ever calls Sink.WriteResult/
// WriteFailure or Checkpoint.MarkDone, so those collaborators need no
// locking of their own.
func (s *Scheduler) Run(ctx context.Context, params RunParams) CrawlSummary {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var skipped, succeeded, failed int64

	resultCh := make(chan resultItem, 2*s.concurrency)
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.consumeResults(runCtx, cancel, resultCh, params, &succeeded, &failed)
	}()

	var coordWG sync.WaitGroup
	if params.Coordinator != nil {
		coordWG.Add(1)
		go func() {
			defer coordWG.Done()
			params.Coordinator.Run(runCtx)
		}()
		go func() {
			<-params.Coordinator.Aborted()
			cancel()
		}()
	}

	if s.metrics != nil {
		go s.sampleDomainGateOccupancy(runCtx)
	}

	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for _, u := range params.URLs {
			select {
			case jobs <- u:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var workersWG sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		driver := retrydriver.New(
			s.fetcher, s.gate, s.rateLimiter, s.sleeper, s.pauseGate, s.metadataSink,
			s.maxRetries, s.variationsEnabled, s.maxVariations, s.randomSeed+int64(i),
		)
		workersWG.Add(1)
		go func(d *retrydriver.Driver) {
			defer workersWG.Done()
			for url := range jobs {
				if params.Checkpoint != nil && params.Checkpoint.IsDone(url) {
					atomic.AddInt64(&skipped, 1)
					continue
				}
				s.runOne(runCtx, d, url, params, resultCh)
			}
		}(driver)
	}
	workersWG.Wait()

	// Guarantee liveness for any waiter still blocked on the pause gate
	// (e.g. a worker racing shutdown) before tearing down.
	s.pauseGate.Set()

	close(resultCh)
	writerWG.Wait()

	if params.Coordinator != nil {
		params.Coordinator.Close()
		coordWG.Wait()
	}

	aborted := false
	if params.Coordinator != nil {
		select {
		case <-params.Coordinator.Aborted():
			aborted = true
		default:
		}
	}

	report := ""
	if params.Tracker != nil {
		report = params.Tracker.Render(params.ProgressStyle)
	}

	if s.crawlFinalizer != nil {
		s.crawlFinalizer.RecordFinalCrawlStats(
			int(succeeded+failed),
			int(failed),
			0,
			time.Since(start),
		)
	}

	return CrawlSummary{
		TotalURLs: len(params.URLs),
		Succeeded: int(succeeded),
		Failed:    int(failed),
		Skipped:   int(skipped),
		Aborted:   aborted,
		Report:    report,
	}
}

// runOne drives a single URL and hands its outcome to the writer,
// skipping the put entirely once the run context has been cancelled
// (by a dead writer or an aborting coordinator) so no worker blocks on
// a consumer that will never drain again.
func (s *Scheduler) runOne(ctx context.Context, d *retrydriver.Driver, url string, params RunParams, resultCh chan<- resultItem) {
	if ctx.Err() != nil {
		return
	}

	report := func(r coordinator.AttemptReport) {
		if params.Coordinator != nil {
			params.Coordinator.Report(r)
		}
	}

	attemptStart := time.Now()
	result, fail := d.Drive(ctx, url, 0, report)

	if s.metrics != nil {
		outcome := obsmetrics.OutcomeSuccess
		if fail != nil {
			outcome = obsmetrics.OutcomeFailure
		}
		s.metrics.RecordFetch(outcome, time.Since(attemptStart).Seconds())
	}

	select {
	case resultCh <- resultItem{result: result, failure: fail}:
	case <-ctx.Done():
	}
}

// consumeResults is the run's single writer/checkpoint/tracker
// consumer. A fatal Sink error cancels the run rather than retrying or
// silently dropping records (spec.md §7: writer failure is fatal).
func (s *Scheduler) consumeResults(ctx context.Context, cancel context.CancelFunc, resultCh <-chan resultItem, params RunParams, succeeded, failed *int64) {
	for item := range resultCh {
		switch {
		case item.result != nil:
			if err := params.Sink.WriteResult(*item.result); err != nil {
				s.recordWriterFailure(err.Error())
				cancel()
				continue
			}
			if params.Checkpoint != nil {
				if err := params.Checkpoint.MarkDone(item.result.OriginalURL); err != nil {
					s.recordWriterFailure(err.Error())
					cancel()
					continue
				}
			}
			if params.Tracker != nil {
				params.Tracker.RecordSuccess(*item.result)
			}
			if s.metrics != nil && item.result.HubspotDetected {
				s.metrics.RecordHubDetection()
			}
			atomic.AddInt64(succeeded, 1)

		case item.failure != nil:
			if err := params.Sink.WriteFailure(*item.failure); err != nil {
				s.recordWriterFailure(err.Error())
				cancel()
				continue
			}
			if params.Tracker != nil {
				params.Tracker.RecordFailure()
			}
			atomic.AddInt64(failed, 1)
		}
	}
}

// sampleDomainGateOccupancy periodically publishes the gate's run-wide
// in-flight count, since Acquire/release happen inside retrydriver and
// have no other observability seam of their own.
func (s *Scheduler) sampleDomainGateOccupancy(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.metrics.SetDomainGateOccupancy(s.gate.TotalInFlight())
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) recordWriterFailure(message string) {
	if s.metadataSink == nil {
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"scheduler",
		"consumeResults",
		metadata.CauseWriterFailure,
		message,
		[]metadata.Attribute{},
	)
}
