package scheduler_test

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitehat-seo/hubspot-crawler/internal/checkpoint"
	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/domaingate"
	"github.com/whitehat-seo/hubspot-crawler/internal/fetcher"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/internal/progress"
	"github.com/whitehat-seo/hubspot-crawler/internal/scheduler"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
	"github.com/whitehat-seo/hubspot-crawler/pkg/limiter"
	"github.com/whitehat-seo/hubspot-crawler/pkg/retry"
	"github.com/whitehat-seo/hubspot-crawler/pkg/timeutil"
)

// nopMetadataSink discards every call.
type nopMetadataSink struct{}

func (nopMetadataSink) RecordFetch(string, int, time.Duration, string, int, int) {}
func (nopMetadataSink) RecordError(time.Time, string, string, metadata.ErrorCause, string, []metadata.Attribute) {
}
func (nopMetadataSink) RecordArtifact(metadata.ArtifactKind, string, []metadata.Attribute) {}
func (nopMetadataSink) RecordContentFingerprint(time.Time, string, string)                 {}

type nopFinalizer struct{}

func (nopFinalizer) RecordFinalCrawlStats(int, int, int, time.Duration) {}

// alwaysSucceedsFetcher returns one successful HTML fetch per call.
type alwaysSucceedsFetcher struct{}

func (alwaysSucceedsFetcher) Init(*http.Client, string) {}

func (alwaysSucceedsFetcher) Fetch(ctx context.Context, crawlDepth int, fetchUrl url.URL, retryParam retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	body := []byte("<html><head><title>t</title></head><body></body></html>")
	return fetcher.NewFetchResultForTest(fetchUrl, body, 200, "text/html", map[string]string{"Content-Type": "text/html"}, time.Now(), nil), nil
}

// alwaysFailsFetcher returns a non-retryable failure for every call.
type alwaysFailsFetcher struct{}

func (alwaysFailsFetcher) Init(*http.Client, string) {}

func (alwaysFailsFetcher) Fetch(ctx context.Context, crawlDepth int, fetchUrl url.URL, retryParam retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	return fetcher.FetchResult{}, &fetcher.FetchError{Message: "nope", Retryable: false, Cause: fetcher.ErrCauseRedirectLimitExceeded}
}

// recordingSink captures every record handed to it, and can be told to
// fail on a given call to exercise the writer-failure abort path.
type recordingSink struct {
	mu       sync.Mutex
	results  []detect.Result
	failures []detect.Failure
	failAt   int
	calls    int
}

func (s *recordingSink) WriteResult(r detect.Result) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return &writerFailure{}
	}
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) WriteFailure(f detect.Failure) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		return &writerFailure{}
	}
	s.failures = append(s.failures, f)
	return nil
}

func (s *recordingSink) Close() failure.ClassifiedError { return nil }

func (s *recordingSink) count() (results, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results), len(s.failures)
}

type writerFailure struct{}

func (e *writerFailure) Error() string              { return "simulated writer failure" }
func (e *writerFailure) Severity() failure.Severity { return failure.SeverityFatal }

func newScheduler(t *testing.T, f fetcher.Fetcher) *scheduler.Scheduler {
	t.Helper()
	opts := scheduler.Options{
		Concurrency:       3,
		MaxPerDomain:      2,
		MaxRetries:        2,
		VariationsEnabled: false,
		MaxVariations:     0,
		RandomSeed:        1,
		UserAgent:         "test-agent",
	}
	sleeper := timeutil.NewRealSleeper()
	return scheduler.NewSchedulerWithDeps(
		f,
		domaingate.New(opts.MaxPerDomain),
		limiter.NewConcurrentRateLimiter(),
		&sleeper,
		coordinator.NewPauseGate(),
		nopMetadataSink{},
		nopFinalizer{},
		nil,
		opts,
	)
}

func urls(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, "https://example.com/page")
	}
	return out
}

func TestRunWritesOneResultPerURLAndMarksCheckpoint(t *testing.T) {
	s := newScheduler(t, alwaysSucceedsFetcher{})
	sink := &recordingSink{}
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.txt"))
	require.Nil(t, err)
	defer store.Close()

	inputs := []string{"https://a.example.com/", "https://b.example.com/", "https://c.example.com/"}
	tracker := progress.New(len(inputs))

	summary := s.Run(context.Background(), scheduler.RunParams{
		URLs:          inputs,
		Sink:          sink,
		Checkpoint:    store,
		Tracker:       tracker,
		ProgressStyle: progress.StyleCompact,
	})

	assert.Equal(t, len(inputs), summary.TotalURLs)
	assert.Equal(t, len(inputs), summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.Aborted)

	results, failures := sink.count()
	assert.Equal(t, len(inputs), results)
	assert.Equal(t, 0, failures)

	for _, u := range inputs {
		assert.True(t, store.IsDone(u))
	}
}

func TestRunSkipsURLsAlreadyInCheckpoint(t *testing.T) {
	s := newScheduler(t, alwaysSucceedsFetcher{})
	sink := &recordingSink{}
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoint.txt"))
	require.Nil(t, err)
	defer store.Close()
	require.Nil(t, store.MarkDone("https://a.example.com/"))

	inputs := []string{"https://a.example.com/", "https://b.example.com/"}
	summary := s.Run(context.Background(), scheduler.RunParams{
		URLs:       inputs,
		Sink:       sink,
		Checkpoint: store,
	})

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)

	results, _ := sink.count()
	assert.Equal(t, 1, results)
}

func TestRunRecordsFailuresForUnretryableErrors(t *testing.T) {
	s := newScheduler(t, alwaysFailsFetcher{})
	sink := &recordingSink{}

	inputs := urls(4)
	summary := s.Run(context.Background(), scheduler.RunParams{
		URLs: inputs,
		Sink: sink,
	})

	assert.Equal(t, 4, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)

	_, failures := sink.count()
	assert.Equal(t, 4, failures)
}

func TestRunAbortsOnWriterFailureWithoutHanging(t *testing.T) {
	s := newScheduler(t, alwaysSucceedsFetcher{})
	sink := &recordingSink{failAt: 1}

	inputs := urls(50)
	done := make(chan scheduler.CrawlSummary, 1)
	go func() {
		done <- s.Run(context.Background(), scheduler.RunParams{
			URLs: inputs,
			Sink: sink,
		})
	}()

	select {
	case summary := <-done:
		assert.Less(t, summary.Succeeded, len(inputs))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a fatal writer failure; workers likely deadlocked on a dead consumer")
	}
}
