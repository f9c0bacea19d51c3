package fetcher

import (
	"fmt"

	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

// FetchErrorCause is a closed classification of why a single fetch
// attempt failed. Unlike metadata.ErrorCause (observability-only), this
// one drives retry/variation decisions in internal/retrydriver.
type FetchErrorCause string

// Left as untyped string constants (rather than FetchErrorCause-typed)
// so callers — including html_test.go's strings.Contains assertions —
// can use them as plain strings without a conversion.
//
// Only transport-level failures (the request never produced an HTTP
// response) belong here. HTTP status codes, including 4xx/5xx, are not
// fetch errors — they come back as a FetchResult carrying the status
// (spec.md §4.3) and are classified further downstream in
// internal/retrydriver and internal/blockdetect.
const (
	ErrCauseTimeout               = "timeout"
	ErrCauseNetworkFailure        = "network issues"
	ErrCauseTLSFailure            = "tls"
	ErrCauseConnectionReset       = "connectionReset"
	ErrCauseDNSFailure            = "dns"
	ErrCauseReadResponseBodyError = "failed to read response body"
	ErrCauseRedirectLimitExceeded = "reached redirect limit"
	ErrCauseRepeated403           = "repeated 403s"
)

type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout:
		return metadata.CauseNetworkFailure
	case ErrCauseTLSFailure, ErrCauseConnectionReset, ErrCauseDNSFailure, ErrCauseNetworkFailure:
		return metadata.CauseNetworkFailure
	case ErrCauseRepeated403:
		return metadata.CausePolicyDisallow
	default:
		return metadata.CauseUnknown
	}
}
