package writer

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

// TabularWriter emits Columns as CSV text: header row once, one flushed
// row per record, booleans as "true"/"false", hub_ids comma-joined.
type TabularWriter struct {
	mu            sync.Mutex
	w             *csv.Writer
	file          *os.File
	path          string
	headerWritten bool
	metadataSink  metadata.MetadataSink
}

// NewTabularWriter opens path for writing (truncating any existing file).
func NewTabularWriter(path string, metadataSink metadata.MetadataSink) (*TabularWriter, failure.ClassifiedError) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &SinkError{Message: err.Error(), Cause: ErrCauseInvalidDestination}
	}
	return &TabularWriter{
		w:            csv.NewWriter(f),
		file:         f,
		path:         path,
		metadataSink: metadataSink,
	}, nil
}

func (tw *TabularWriter) WriteResult(result detect.Result) failure.ClassifiedError {
	return tw.writeRow(rowFromResult(result))
}

func (tw *TabularWriter) WriteFailure(failureRecord detect.Failure) failure.ClassifiedError {
	return tw.writeRow(rowFromFailure(failureRecord))
}

func (tw *TabularWriter) writeRow(r row) failure.ClassifiedError {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.headerWritten {
		if err := tw.w.Write(Columns); err != nil {
			return tw.writeFailed(err)
		}
		tw.headerWritten = true
	}

	if err := tw.w.Write(rowToFields(r)); err != nil {
		return tw.writeFailed(err)
	}
	tw.w.Flush()
	if err := tw.w.Error(); err != nil {
		return tw.writeFailed(err)
	}
	return nil
}

func rowToFields(r row) []string {
	hubIDStrs := make([]string, len(r.hubIDs))
	for i, id := range r.hubIDs {
		hubIDStrs[i] = strconv.Itoa(id)
	}

	return []string{
		r.originalURL,
		r.finalURL,
		r.timestamp,
		strconv.FormatBool(r.hubspotDetected),
		strconv.FormatBool(r.tracking),
		strconv.FormatBool(r.cmsHosting),
		string(r.confidence),
		strconv.FormatBool(r.forms),
		strconv.FormatBool(r.chat),
		strconv.FormatBool(r.ctasLegacy),
		strconv.FormatBool(r.meetings),
		strconv.FormatBool(r.video),
		strconv.FormatBool(r.emailTracking),
		strings.Join(hubIDStrs, ","),
		strconv.Itoa(len(r.hubIDs)),
		strconv.Itoa(r.evidenceCount),
		intPtrString(r.httpStatus),
		stringPtrValue(r.pageTitle),
		stringPtrValue(r.pageDescription),
	}
}

func intPtrString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func stringPtrValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (tw *TabularWriter) writeFailed(err error) failure.ClassifiedError {
	sinkErr := &SinkError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	if tw.metadataSink != nil {
		tw.metadataSink.RecordError(
			time.Now(),
			"writer",
			"TabularWriter.writeRow",
			metadata.CauseWriterFailure,
			sinkErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, tw.path)},
		)
	}
	return sinkErr
}

func (tw *TabularWriter) Close() failure.ClassifiedError {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.w.Flush()
	if err := tw.w.Error(); err != nil {
		return tw.writeFailed(err)
	}
	if err := tw.file.Close(); err != nil {
		return &SinkError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	if tw.metadataSink != nil {
		tw.metadataSink.RecordArtifact(metadata.ArtifactResultFile, tw.path, nil)
	}
	return nil
}
