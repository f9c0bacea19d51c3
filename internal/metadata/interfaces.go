package metadata

import "time"

// MetadataSink is the observability seam threaded through every pipeline
// stage. Implementations must treat every method as fire-and-forget:
// recording metadata must never block or fail the crawl itself.
type MetadataSink interface {
	RecordFetch(fetchUrl string, statusCode int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordError(t time.Time, packageName string, action string, cause ErrorCause, errString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	// RecordContentFingerprint logs a short content hash alongside a
	// successful fetch, so an operator can correlate byte-identical
	// bodies served under different URL spellings (e.g. across
	// generateVariations candidates) or across resumed runs.
	RecordContentFingerprint(t time.Time, url string, hash string)
}

// CrawlFinalizer records the terminal, derived summary of a completed
// crawl exactly once, after termination.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}
