package metadata

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause is for observability only.
	 - It must never be used to derive retry, continuation, or abort decisions.
	 - Any use of metadata.ErrorCause outside logging, metrics, or reporting is a design violation.
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.
	Non-goals:
	 - ErrorCause does not encode severity.
	 - ErrorCause does not imply retryability.
	 - ErrorCause does not imply crawl termination.
	 - ErrorCause does not imply correctness of downstream behavior.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning:
  - The failure does not map cleanly to any known category.
  - Used as a safe fallback.

Examples:
  - Unexpected internal errors
  - Unclassified third-party library failures

# CauseNetworkFailure

Meaning:
  - Failure caused by network transport or remote availability.

Examples:
  - TCP timeouts
  - DNS resolution failures
  - Connection resets
  - robots.txt fetch timeout

# CausePolicyDisallow

Meaning:
  - Crawling was disallowed by an explicit policy or rule.

Examples:
  - robots.txt disallow
  - HTTP 403 / 401 interpreted as access denial
  - rate-limit enforcement

# CauseContentInvalid

Meaning:
  - Content was fetched but could not be processed meaningfully.

Examples:
  - Non-HTML responses
  - Empty or unextractable document bodies
  - Broken DOM preventing extraction

# CauseStorageFailure

Meaning:
  - Failure while persisting crawl artifacts.

Examples:
  - Disk full
  - Write permission errors
  - Filesystem I/O failures

# CauseInvariantViolation

Meaning:
  - A system-level invariant was violated.

Examples:
  - Multiple H1s in a document
  - Impossible crawl depth
  - Internal consistency checks failing
*/
const (
	CauseUnknown = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
	// CauseRetryFailure: every retry attempt and every URL variation was
	// exhausted without a successful fetch.
	CauseRetryFailure
	// CauseBlocked: the block detector classified the run (or a host) as
	// likely IP-blocked; the failure is a consequence of that trip, not
	// of the individual request.
	CauseBlocked
	// CauseWriterFailure: the result sink could not persist a record
	// (disk full, permission denied, closed handle).
	CauseWriterFailure
)

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrAssetURL   AttributeKey = "asset_url"
	AttrWritePath  AttributeKey = "write_path"
	// AttrMessage carries a free-text detail string alongside a
	// classified ErrorRecord (e.g. the underlying fetch error text).
	AttrMessage AttributeKey = "message"
	// AttrHubID carries a detected tenant id, logged as a string.
	AttrHubID AttributeKey = "hub_id"
	// AttrConfidence carries a detect.Confidence grade.
	AttrConfidence AttributeKey = "confidence"
	// AttrDomain carries a bare hostname, used by domain-gate and
	// block-detector logging where AttrHost would imply a full authority.
	AttrDomain AttributeKey = "domain"
	// AttrPatternID carries a patterns.ID.
	AttrPatternID AttributeKey = "pattern_id"
	// AttrAttempt carries a 1-indexed attempt number.
	AttrAttempt AttributeKey = "attempt"
)

// ArtifactKind names the kind of durable output RecordArtifact reports.
type ArtifactKind string

const (
	// ArtifactResultFile: a result/failure record was appended to the
	// writer sink's output file.
	ArtifactResultFile ArtifactKind = "result_file"
	// ArtifactCheckpointFile: the checkpoint file was appended to.
	ArtifactCheckpointFile ArtifactKind = "checkpoint_file"
)
