// Package writer is the single consumer of detection results: every
// variant (JSON lines, tabular text, spreadsheet) implements Sink so the
// orchestrator never interleaves writes from multiple goroutines.
package writer

import (
	"fmt"

	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

/*
Responsibilities

- Persist detect.Result and detect.Failure records in a stable column order
- Flush after each record so a crash loses at most the in-flight write
- Guarantee no interleaving: one Sink, one writer goroutine

A Sink never decides routing (which records it sees); that's the
orchestrator's job. It only knows how to serialize what it's handed.
*/

// Sink is the single-consumer contract every output format implements.
type Sink interface {
	WriteResult(result detect.Result) failure.ClassifiedError
	WriteFailure(failureRecord detect.Failure) failure.ClassifiedError
	Close() failure.ClassifiedError
}

// Columns is the tabular column order spec.md fixes for both CSV and
// spreadsheet output.
var Columns = []string{
	"original_url", "final_url", "timestamp", "hubspot_detected",
	"tracking", "cms_hosting", "confidence",
	"forms", "chat", "ctas_legacy", "meetings", "video", "email_tracking",
	"hub_ids", "hub_id_count", "evidence_count",
	"http_status", "page_title", "page_description",
}

// SinkErrorCause classifies why a Sink could not persist a record.
type SinkErrorCause string

const (
	ErrCauseWriteFailed        SinkErrorCause = "write failed"
	ErrCauseMarshalFailed      SinkErrorCause = "marshal failed"
	ErrCauseInvalidDestination SinkErrorCause = "invalid destination"
)

// SinkError reports a Sink failure. It is always fatal to the run: per
// spec.md §7, writer failure aborts the orchestrator rather than becoming
// a per-URL failure record.
type SinkError struct {
	Message string
	Cause   SinkErrorCause
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("writer error: %s: %s", e.Cause, e.Message)
}

func (e *SinkError) Severity() failure.Severity {
	return failure.SeverityFatal
}

// row is the flattened column projection shared by a Result and a
// Failure: failures carry the same zero-valued summary fields
// detect.MakeFailure already sets (confidence=weak, no evidence).
type row struct {
	originalURL      string
	finalURL         string
	timestamp        string
	hubspotDetected  bool
	tracking         bool
	cmsHosting       bool
	confidence       detect.Confidence
	forms            bool
	chat             bool
	ctasLegacy       bool
	meetings         bool
	video            bool
	emailTracking    bool
	hubIDs           []int
	evidenceCount    int
	httpStatus       *int
	pageTitle        *string
	pageDescription  *string
}

func rowFromResult(r detect.Result) row {
	return row{
		originalURL:     r.OriginalURL,
		finalURL:        r.FinalURL,
		timestamp:       r.Timestamp,
		hubspotDetected: r.HubspotDetected,
		tracking:        r.Summary.Tracking,
		cmsHosting:      r.Summary.CMSHosting,
		confidence:      r.Summary.Confidence,
		forms:           r.Summary.Features.Forms,
		chat:            r.Summary.Features.Chat,
		ctasLegacy:      r.Summary.Features.CTAsLegacy,
		meetings:        r.Summary.Features.Meetings,
		video:           r.Summary.Features.Video,
		emailTracking:   r.Summary.Features.EmailTrackingIndicators,
		hubIDs:          r.HubIDs,
		evidenceCount:   len(r.Evidence),
		httpStatus:      r.HTTPStatus,
		pageTitle:       pageField(r.PageMetadata, func(m detect.PageMetadata) *string { return m.Title }),
		pageDescription: pageField(r.PageMetadata, func(m detect.PageMetadata) *string { return m.Description }),
	}
}

func rowFromFailure(f detect.Failure) row {
	return row{
		originalURL:     f.OriginalURL,
		finalURL:        f.FinalURL,
		timestamp:       f.Timestamp,
		hubspotDetected: f.HubspotDetected,
		tracking:        f.Summary.Tracking,
		cmsHosting:      f.Summary.CMSHosting,
		confidence:      f.Summary.Confidence,
		forms:           f.Summary.Features.Forms,
		chat:            f.Summary.Features.Chat,
		ctasLegacy:      f.Summary.Features.CTAsLegacy,
		meetings:        f.Summary.Features.Meetings,
		video:           f.Summary.Features.Video,
		emailTracking:   f.Summary.Features.EmailTrackingIndicators,
		hubIDs:          f.HubIDs,
		evidenceCount:   len(f.Evidence),
	}
}

func pageField(meta *detect.PageMetadata, get func(detect.PageMetadata) *string) *string {
	if meta == nil {
		return nil
	}
	return get(*meta)
}
