// Package retrydriver owns the per-URL fetch policy: pause-wait, pacing,
// the per-domain concurrency gate, an outer fetch deadline, and the
// retry/backoff/variation sequence that turns raw fetches into either a
// detect.Result or a detect.Failure.
package retrydriver

import (
	"context"
	"math/rand"
	"net/url"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/coordinator"
	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/domaingate"
	"github.com/whitehat-seo/hubspot-crawler/internal/fetcher"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/internal/resource"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
	"github.com/whitehat-seo/hubspot-crawler/pkg/hashutil"
	"github.com/whitehat-seo/hubspot-crawler/pkg/limiter"
	"github.com/whitehat-seo/hubspot-crawler/pkg/retry"
	"github.com/whitehat-seo/hubspot-crawler/pkg/timeutil"
	"github.com/whitehat-seo/hubspot-crawler/pkg/urlutil"
)

const (
	// driverAttemptDeadline bounds one candidate-URL attempt's domain-gate
	// wait plus the fetch it guards.
	driverAttemptDeadline = 30 * time.Second
	// fetchDeadline bounds the raw HTTP round trip, nested inside
	// driverAttemptDeadline.
	fetchDeadline      = 20 * time.Second
	pauseSafetyTimeout = 300 * time.Second
	rateLimitPenalty   = 120 * time.Second
)

// transientBackoff realizes spec's 5s/15s/45s backoff sequence: initial 5s,
// tripling each attempt, capped at 45s.
var transientBackoff = timeutil.NewBackoffParam(5*time.Second, 3.0, 45*time.Second)

// singleAttempt disables pkg/retry's own internal retry loop: the driver
// calls the fetcher exactly once per attempt and owns classification and
// backoff itself, using fetcher.FetchErrorCause rather than string matching.
var singleAttempt = retry.NewRetryParam(0, 0, 0, 1, timeutil.BackoffParam{})

// Driver runs spec.md §4.4's fetch/retry/variation sequence for a single
// (urlToFetch, originalURL) pair.
type Driver struct {
	fetcher      fetcher.Fetcher
	gate         *domaingate.Gate
	rateLimiter  limiter.RateLimiter
	sleeper      timeutil.Sleeper
	pauseGate    *coordinator.PauseGate
	metadataSink metadata.MetadataSink

	maxRetries        int
	variationsEnabled bool
	maxVariations     int

	rng *rand.Rand
}

// New creates a Driver. maxRetries bounds the transient-failure backoff
// loop per candidate URL; variationsEnabled/maxVariations control whether
// generateVariations(normalize(original)) is tried after the primary URL
// is exhausted. randomSeed seeds the driver's own jitter source, kept
// separate from the fetcher's single-attempt RetryParam.
func New(
	f fetcher.Fetcher,
	gate *domaingate.Gate,
	rateLimiter limiter.RateLimiter,
	sleeper timeutil.Sleeper,
	pauseGate *coordinator.PauseGate,
	metadataSink metadata.MetadataSink,
	maxRetries int,
	variationsEnabled bool,
	maxVariations int,
	randomSeed int64,
) *Driver {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Driver{
		fetcher:           f,
		gate:              gate,
		rateLimiter:       rateLimiter,
		sleeper:           sleeper,
		pauseGate:         pauseGate,
		metadataSink:      metadataSink,
		maxRetries:        maxRetries,
		variationsEnabled: variationsEnabled,
		maxVariations:     maxVariations,
		rng:               rand.New(rand.NewSource(randomSeed)),
	}
}

// ReportFunc receives one attempt report per fetch attempt, for the block
// detector. nil is accepted when no coordinator is running.
type ReportFunc func(coordinator.AttemptReport)

// Drive fetches originalURL (and, on exhaustion, its spelling variations),
// classifying failures and retrying transient ones with backoff. Exactly
// one of the two return values is non-nil.
func (d *Driver) Drive(ctx context.Context, originalURL string, crawlDepth int, report ReportFunc) (*detect.Result, *detect.Failure) {
	if report == nil {
		report = func(coordinator.AttemptReport) {}
	}

	normalized := urlutil.Normalize(originalURL)
	candidates := []string{normalized}
	if d.variationsEnabled {
		candidates = append(candidates, urlutil.Variations(normalized, d.maxVariations)...)
	}

	var attemptedURLs []string
	var totalAttempts int
	var lastErr failure.ClassifiedError

	for _, candidate := range candidates {
		attemptedURLs = append(attemptedURLs, candidate)

		result, attempts, err := d.driveOne(ctx, candidate, crawlDepth, report)
		totalAttempts += attempts

		if err == nil {
			record := d.buildResult(originalURL, result)
			return &record, nil
		}
		lastErr = err
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	failureRecord := detect.MakeFailure(originalURL, timestamp(), errMsg, totalAttempts, attemptedURLs)
	return nil, &failureRecord
}

// driveOne runs the pause-wait/pace/gate/fetch/classify/backoff loop for a
// single candidate URL, returning the number of HTTP attempts it made.
func (d *Driver) driveOne(ctx context.Context, candidate string, crawlDepth int, report ReportFunc) (fetcher.FetchResult, int, failure.ClassifiedError) {
	parsed, parseErr := url.Parse(candidate)
	if parseErr != nil {
		return fetcher.FetchResult{}, 0, &driveError{message: parseErr.Error()}
	}
	host := parsed.Host

	var lastErr failure.ClassifiedError
	attempt := 0

	for attempt < d.maxRetries {
		attempt++

		d.pauseGate.Wait(ctx, pauseSafetyTimeout)

		d.sleeper.Sleep(d.rateLimiter.ResolveDelay(host))
		d.rateLimiter.MarkLastFetchAsNow(host)

		attemptCtx, attemptCancel := context.WithTimeout(ctx, driverAttemptDeadline)

		release, err := d.gate.Acquire(attemptCtx, host)
		if err != nil {
			attemptCancel()
			return fetcher.FetchResult{}, attempt, &driveError{message: err.Error()}
		}

		fetchCtx, cancel := context.WithTimeout(attemptCtx, fetchDeadline)
		result, fetchErr := d.fetcher.Fetch(fetchCtx, crawlDepth, *parsed, singleAttempt)
		cancel()
		release()
		attemptCancel()

		if fetchErr == nil {
			status := result.Code()
			// Success here only means a response came back; status ∈
			// {403, 429} is still an operational failure signal for the
			// block detector even though it yields a normal detect.Result.
			report(coordinator.AttemptReport{
				URL:        candidate,
				Domain:     host,
				Success:    status != 403 && status != 429,
				StatusCode: status,
			})

			switch {
			case status == 429:
				// spec.md §4.4: rate limited, back off hard and don't retry.
				d.sleeper.Sleep(rateLimitPenalty)
				return result, attempt, nil
			case status == 403:
				// spec.md §4.4: forbidden, don't retry.
				return result, attempt, nil
			case status >= 500:
				if attempt == d.maxRetries {
					return result, attempt, nil
				}
				d.sleeper.Sleep(timeutil.ExponentialBackoffDelay(attempt, 0, *d.rng, transientBackoff))
				continue
			default:
				return result, attempt, nil
			}
		}

		lastErr = fetchErr
		cause, _ := fetchCause(fetchErr)
		report(coordinator.AttemptReport{
			URL:        candidate,
			Domain:     host,
			Success:    false,
			StatusCode: 0,
			Cause:      string(cause),
		})

		switch cause {
		case fetcher.ErrCauseTimeout, fetcher.ErrCauseNetworkFailure, fetcher.ErrCauseTLSFailure,
			fetcher.ErrCauseConnectionReset, fetcher.ErrCauseDNSFailure, fetcher.ErrCauseReadResponseBodyError:
			if attempt == d.maxRetries {
				return fetcher.FetchResult{}, attempt, fetchErr
			}
			d.sleeper.Sleep(timeutil.ExponentialBackoffDelay(attempt, 0, *d.rng, transientBackoff))
			continue
		default:
			return fetcher.FetchResult{}, attempt, fetchErr
		}
	}

	return fetcher.FetchResult{}, attempt, lastErr
}

func (d *Driver) buildResult(originalURL string, result fetcher.FetchResult) detect.Result {
	body := string(result.Body())
	finalURL := result.URL().String()

	evidence := append(
		detect.DetectHTML(body),
		append(
			detect.DetectNetwork(resource.ExtractURLs(body, finalURL)),
			detect.DetectHeaderCookies(result.SetCookies())...,
		)...,
	)

	meta := resource.ExtractMetadata(body)
	pageMeta := &detect.PageMetadata{Title: meta.Title, Description: meta.Description}

	if d.metadataSink != nil {
		if hash, err := hashutil.HashBytes(result.Body(), hashutil.HashAlgoBLAKE3); err == nil {
			d.metadataSink.RecordContentFingerprint(time.Now(), finalURL, hash)
		}
	}

	statusCode := result.Code()
	return detect.MakeResult(originalURL, finalURL, timestamp(), evidence, result.Headers(), &statusCode, pageMeta)
}

func fetchCause(err failure.ClassifiedError) (fetcher.FetchErrorCause, bool) {
	fetchErr, ok := err.(*fetcher.FetchError)
	if !ok {
		return "", false
	}
	return fetchErr.Cause, true
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type driveError struct {
	message string
}

func (e *driveError) Error() string             { return e.message }
func (e *driveError) Severity() failure.Severity { return failure.SeverityRecoverable }
