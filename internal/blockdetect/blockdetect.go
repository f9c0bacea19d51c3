// Package blockdetect watches the recent stream of fetch attempts across
// all domains and flags when the pattern looks like IP-level blocking
// rather than ordinary per-site failures.
package blockdetect

// blockingErrorKinds is the closed set of transport-error kinds that
// count as a blocking signal alongside a raw 403/429 status (spec.md
// §4.6: errorKind ∈ {connectionReset, tls, ssl, clientConnectorError}).
// Go's http.Client never distinguishes ssl from tls, or surfaces a
// clientConnectorError the way aiohttp/requests do, so those collapse
// into "tls"/"connectionReset" at the fetcher boundary (see
// internal/fetcher.classifyTransportError); the set below is kept wide
// so a caller that does have a finer-grained kind is still honored.
var blockingErrorKinds = map[string]struct{}{
	"tls":                  {},
	"ssl":                  {},
	"connectionReset":      {},
	"clientConnectorError": {},
}

type attempt struct {
	domain    string
	isBlocked bool
}

// Detector tracks the last windowSize fetch attempts across all domains
// and the last 50 URLs that failed for a blocking reason, so a caller can
// decide whether to pause the crawl and what to retry afterward.
//
// Not safe for concurrent use; callers serialize access through a single
// consumer goroutine (see internal/coordinator).
type Detector struct {
	threshold  int
	windowSize int

	window    []attempt
	retryURLs []string
}

const retryQueueCapacity = 50

// New creates a Detector that triggers once threshold blocking failures
// are seen within the last windowSize attempts.
func New(threshold, windowSize int) *Detector {
	if threshold <= 0 {
		threshold = 5
	}
	if windowSize <= 0 {
		windowSize = 20
	}
	return &Detector{threshold: threshold, windowSize: windowSize}
}

// RecordAttempt classifies one fetch outcome and folds it into the
// sliding window. statusCode is the HTTP status if one was received, or
// 0 otherwise. errorKind is the fetcher's typed transport-error cause
// (e.g. fetcher.ErrCauseTLSFailure), used when no status code signals
// blocking on its own; it is matched exactly against blockingErrorKinds,
// never substring-matched against a free-form error message.
func (d *Detector) RecordAttempt(url, domain string, success bool, statusCode int, errorKind string) {
	isBlocked := false
	if !success {
		if statusCode == 403 || statusCode == 429 {
			isBlocked = true
		} else if _, ok := blockingErrorKinds[errorKind]; ok {
			isBlocked = true
		}
	}

	d.window = append(d.window, attempt{domain: domain, isBlocked: isBlocked})
	if len(d.window) > d.windowSize {
		d.window = d.window[len(d.window)-d.windowSize:]
	}

	if !success && isBlocked {
		d.retryURLs = append(d.retryURLs, url)
		if len(d.retryURLs) > retryQueueCapacity {
			d.retryURLs = d.retryURLs[len(d.retryURLs)-retryQueueCapacity:]
		}
	}
}

// Stats summarizes the current window for reporting alongside an
// IsLikelyBlocked verdict.
type Stats struct {
	BlockingFailures int
	TotalAttempts    int
	BlockingRate     float64
	UniqueDomains    int
	AffectedDomains  []string
	RetryQueueSize   int
}

// IsLikelyBlocked reports whether the recent attempt pattern looks like
// IP blocking: at least threshold blocking failures, spanning at least
// two distinct domains, at a blocking rate of 60% or more within the
// window.
func (d *Detector) IsLikelyBlocked() (bool, Stats) {
	var blockingFailures []attempt
	for _, a := range d.window {
		if a.isBlocked {
			blockingFailures = append(blockingFailures, a)
		}
	}

	if len(blockingFailures) < d.threshold {
		return false, Stats{}
	}

	recentBlocking := blockingFailures
	if len(recentBlocking) > d.threshold {
		recentBlocking = recentBlocking[len(recentBlocking)-d.threshold:]
	}

	domainSeen := make(map[string]struct{})
	var uniqueDomains []string
	for _, a := range recentBlocking {
		if _, ok := domainSeen[a.domain]; !ok {
			domainSeen[a.domain] = struct{}{}
			uniqueDomains = append(uniqueDomains, a.domain)
		}
	}

	total := len(d.window)
	if total == 0 {
		total = 1
	}
	blockingRate := float64(len(blockingFailures)) / float64(total)

	isBlocked := len(blockingFailures) >= d.threshold &&
		len(uniqueDomains) >= 2 &&
		blockingRate >= 0.60

	affected := uniqueDomains
	if len(affected) > 5 {
		affected = affected[:5]
	}

	stats := Stats{
		BlockingFailures: len(blockingFailures),
		TotalAttempts:    len(d.window),
		BlockingRate:     blockingRate,
		UniqueDomains:    len(uniqueDomains),
		AffectedDomains:  affected,
		RetryQueueSize:   len(d.retryURLs),
	}

	return isBlocked, stats
}

// RetryURLs returns the URLs that most recently failed for a blocking
// reason, for re-queueing once the pause is lifted.
func (d *Detector) RetryURLs() []string {
	urls := make([]string, len(d.retryURLs))
	copy(urls, d.retryURLs)
	return urls
}

// Reset clears the sliding window after a block has been handled. The
// retry queue is preserved so the caller can still drain it.
func (d *Detector) Reset() {
	d.window = nil
}
