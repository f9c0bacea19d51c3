package writer

import (
	"sync"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

// WorkbookAppender is the external collaborator that owns the actual
// spreadsheet file format. The core only agrees on the column contract
// (Columns, bold header row, native boolean cells, save-on-close); which
// library renders that to .xlsx bytes is a concern outside this module.
type WorkbookAppender interface {
	AppendHeader(columns []string) error
	AppendRow(values []any) error
	Save(path string) error
}

// SpreadsheetSink adapts a WorkbookAppender to Sink: same columns as
// TabularWriter, but with native-typed cells (bool, int, string) instead
// of stringified CSV fields, and the workbook saved once on Close rather
// than flushed per record.
type SpreadsheetSink struct {
	mu            sync.Mutex
	path          string
	appender      WorkbookAppender
	headerWritten bool
	metadataSink  metadata.MetadataSink
}

// NewSpreadsheetSink builds a sink over appender, writing to path on
// Close. path must be a file destination; an empty path is rejected
// immediately per spec.md §4.8 ("writing to a non-file destination is an
// error").
func NewSpreadsheetSink(path string, appender WorkbookAppender, metadataSink metadata.MetadataSink) (*SpreadsheetSink, failure.ClassifiedError) {
	if path == "" {
		return nil, &SinkError{Message: "spreadsheet sink requires a file destination", Cause: ErrCauseInvalidDestination}
	}
	return &SpreadsheetSink{path: path, appender: appender, metadataSink: metadataSink}, nil
}

func (s *SpreadsheetSink) WriteResult(result detect.Result) failure.ClassifiedError {
	return s.writeRow(rowFromResult(result))
}

func (s *SpreadsheetSink) WriteFailure(failureRecord detect.Failure) failure.ClassifiedError {
	return s.writeRow(rowFromFailure(failureRecord))
}

func (s *SpreadsheetSink) writeRow(r row) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.headerWritten {
		if err := s.appender.AppendHeader(Columns); err != nil {
			return s.writeFailed(err)
		}
		s.headerWritten = true
	}

	hubIDs := make([]any, len(r.hubIDs))
	for i, id := range r.hubIDs {
		hubIDs[i] = id
	}

	values := []any{
		r.originalURL, r.finalURL, r.timestamp, r.hubspotDetected,
		r.tracking, r.cmsHosting, string(r.confidence),
		r.forms, r.chat, r.ctasLegacy, r.meetings, r.video, r.emailTracking,
		hubIDs, len(r.hubIDs), r.evidenceCount,
		intPtrValue(r.httpStatus), stringPtrValue(r.pageTitle), stringPtrValue(r.pageDescription),
	}
	if err := s.appender.AppendRow(values); err != nil {
		return s.writeFailed(err)
	}
	return nil
}

func intPtrValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SpreadsheetSink) writeFailed(err error) failure.ClassifiedError {
	sinkErr := &SinkError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	if s.metadataSink != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"writer",
			"SpreadsheetSink.writeRow",
			metadata.CauseWriterFailure,
			sinkErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, s.path)},
		)
	}
	return sinkErr
}

// Close saves the workbook. Per spec.md §4.8 the workbook is persisted on
// the sentinel, not per record.
func (s *SpreadsheetSink) Close() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appender.Save(s.path); err != nil {
		return s.writeFailed(err)
	}
	if s.metadataSink != nil {
		s.metadataSink.RecordArtifact(metadata.ArtifactResultFile, s.path, nil)
	}
	return nil
}
