package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"time"

	"go.uber.org/zap"
)

// Recorder implements MetadataSink and CrawlFinalizer against a
// structured logger. Every method is a single independent zap call;
// zap.Logger is itself safe for concurrent use across goroutines.
type Recorder struct {
	logger *zap.Logger
}

// NewRecorder wraps logger as a Recorder. A nil logger is replaced with
// zap.NewNop() so callers never need a nil check.
func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger}
}

func attrFields(attrs []Attribute) []zap.Field {
	fields := make([]zap.Field, 0, len(attrs))
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	return fields
}

func (r *Recorder) RecordFetch(fetchUrl string, statusCode int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.logger.Info("fetch",
		zap.String("url", fetchUrl),
		zap.Int("status", statusCode),
		zap.Duration("duration", duration),
		zap.String("content_type", contentType),
		zap.Int("retry_count", retryCount),
		zap.Int("crawl_depth", crawlDepth),
	)
}

func (r *Recorder) RecordError(t time.Time, packageName string, action string, cause ErrorCause, errString string, attrs []Attribute) {
	fields := append([]zap.Field{
		zap.Time("observed_at", t),
		zap.String("package", packageName),
		zap.String("action", action),
		zap.Int("cause", int(cause)),
		zap.String("error", errString),
	}, attrFields(attrs)...)
	r.logger.Warn("crawl error", fields...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	fields := append([]zap.Field{
		zap.String("kind", string(kind)),
		zap.String("path", path),
	}, attrFields(attrs)...)
	r.logger.Info("artifact written", fields...)
}

func (r *Recorder) RecordContentFingerprint(t time.Time, url string, hash string) {
	r.logger.Info("content fingerprint",
		zap.Time("observed_at", t),
		zap.String("url", url),
		zap.String("hash", hash),
	)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.logger.Info("crawl finished",
		zap.Int("total_pages", totalPages),
		zap.Int("total_errors", totalErrors),
		zap.Int("total_assets", totalAssets),
		zap.Duration("duration", duration),
	)
}
