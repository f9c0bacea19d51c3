package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
	"github.com/whitehat-seo/hubspot-crawler/pkg/retry"
)

// Fetcher performs a single polite HTTP GET and classifies the outcome.
// It never interprets HTTP status codes as "this page is irrelevant" —
// classification belongs to the caller; Fetcher only decides retryability.
type Fetcher interface {
	Init(httpClient *http.Client, userAgent string)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchUrl url.URL,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
