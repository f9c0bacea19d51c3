package writer_test

import (
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
)

// metadataSinkMock is a mock for metadata.MetadataSink.
type metadataSinkMock struct {
	recordErrorCalled    bool
	recordErrorCause     metadata.ErrorCause
	recordArtifactCalled bool
	recordArtifactKind   metadata.ArtifactKind
	recordArtifactPath   string
}

func (m *metadataSinkMock) RecordFetch(fetchUrl string, statusCode int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}

func (m *metadataSinkMock) RecordError(t time.Time, packageName string, action string, cause metadata.ErrorCause, errString string, attrs []metadata.Attribute) {
	m.recordErrorCalled = true
	m.recordErrorCause = cause
}

func (m *metadataSinkMock) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	m.recordArtifactCalled = true
	m.recordArtifactKind = kind
	m.recordArtifactPath = path
}

func (m *metadataSinkMock) RecordContentFingerprint(t time.Time, url string, hash string) {}
