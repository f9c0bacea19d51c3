package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
	"github.com/whitehat-seo/hubspot-crawler/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and timeouts
- Handle redirects safely
- Classify responses

Fetch Semantics

- Every completed HTTP response, including 4xx/5xx, comes back as a
  FetchResult carrying its status code, headers, and body
- Only transport-level failures (DNS, TCP, TLS, timeout, exceeding the
  redirect limit) are FetchErrors
- All responses are logged with metadata

The fetcher never parses content or inspects Content-Type; it only
returns bytes and metadata. Status-driven retry/no-retry decisions and
evidence extraction both live downstream, in internal/retrydriver and
internal/detect.
*/

type HtmlFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
}

func NewHtmlFetcher(
	metadataSink metadata.MetadataSink,
) HtmlFetcher {
	return HtmlFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
	}
}

// Init wires the HTTP client and user agent a caller has built (one
// configured with DisableKeepAlives and the desired TLS-verification
// mode). The fetcher itself never decides transport-level concerns.
func (h *HtmlFetcher) Init(httpClient *http.Client, userAgent string) {
	h.httpClient = httpClient
	h.userAgent = userAgent
}

func (h *HtmlFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchUrl url.URL,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HtmlFetcher.Fetch"
	startTime := time.Now()

	result, attempts, err := h.fetchWithRetry(ctx, fetchUrl, retryParam)

	duration := time.Since(startTime)

	// Record the fetch event with actual data
	var statusCode int
	var contentType string
	retryCount := attempts

	if err == nil {
		statusCode = result.Code()
		contentType = h.extractContentType(result.Headers())
	}

	h.metadataSink.RecordFetch(
		fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if err != nil {
		// Use errors.Is to decide between FetchError or RetryError
		if errors.Is(err, &retry.RetryError{}) {
			// It's a RetryError
			h.recordRetryError(callerMethod, fetchUrl, err)
		} else {
			// It's a FetchError
			h.recordFetchError(callerMethod, fetchUrl, err)
		}

		return FetchResult{}, err
	}

	return result, nil
}

func (h *HtmlFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *HtmlFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		// record fetch error event
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			mapFetchErrorToMetadataCause(fetchError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HtmlFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
		// record retry error event
		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseRetryFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrMessage, retryError.Error()),
				metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
			},
		)
	}
}

func (h *HtmlFetcher) fetchWithRetry(ctx context.Context, fetchUrl url.URL, retryParam retry.RetryParam) (FetchResult, int, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchUrl)
	}

	result := retry.Retry(retryParam, fetchTask)

	if result.IsFailure() {
		// Check if it's a FetchError (returned by the task) or RetryError
		// (from retry.Retry exhausting attempts)
		var fetchErr *FetchError
		if errors.As(result.Err(), &fetchErr) {
			return FetchResult{}, result.Attempts(), fetchErr
		}
		return FetchResult{}, result.Attempts(), result.Err()
	}

	return result.Value(), result.Attempts(), nil
}

func (h *HtmlFetcher) performFetch(ctx context.Context, fetchUrl url.URL) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	// Apply browser-like headers
	headers := requestHeaders(h.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		// http.Client.Do returns an error (no response) for transport
		// failures and for a redirect chain that exceeded its limit; both
		// are classified here since the fetcher never sees a status code
		// for either.
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: !isRedirectLimitError(err),
			Cause:     classifyTransportError(err),
		}
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	// Build response headers map
	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	finalURL := fetchUrl
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}

	result := FetchResult{
		url:       finalURL,
		body:      body,
		fetchedAt: time.Now(),
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
			setCookies:      resp.Header.Values("Set-Cookie"),
		},
	}

	return result, nil
}

// isRedirectLimitError reports whether err is http.Client's own
// "stopped after N redirects" error rather than a genuine transport
// failure; it is not retryable since the target keeps redirecting.
func isRedirectLimitError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "stopped after")
}

// classifyTransportError buckets a failed http.Client.Do call into a
// FetchErrorCause. DNS and TLS failures are distinguished by type where
// the stdlib exposes one; connection resets are only ever surfaced as a
// wrapped message, so that bucket is message-based like the others.
func classifyTransportError(err error) FetchErrorCause {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCauseTimeout
	}
	if isRedirectLimitError(err) {
		return ErrCauseRedirectLimitExceeded
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrCauseDNSFailure
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "tls"), strings.Contains(message, "ssl"),
		strings.Contains(message, "certificate"), strings.Contains(message, "x509"):
		return ErrCauseTLSFailure
	case strings.Contains(message, "connection reset"):
		return ErrCauseConnectionReset
	default:
		return ErrCauseNetworkFailure
	}
}

// ClassifyTransportErrorForTest exposes classifyTransportError to test
// packages that can't reach it directly across the package boundary.
func ClassifyTransportErrorForTest(err error) FetchErrorCause {
	return classifyTransportError(err)
}

// IsRedirectLimitErrorForTest exposes isRedirectLimitError to test
// packages that can't reach it directly across the package boundary.
func IsRedirectLimitErrorForTest(err error) bool {
	return isRedirectLimitError(err)
}

// requestHeaders mimics a real browser's request headers. Connection is
// intentionally left to the transport: the client is expected to carry
// DisableKeepAlives, so every request opens a fresh connection instead
// of pooling against the target host.
func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
	}
}
