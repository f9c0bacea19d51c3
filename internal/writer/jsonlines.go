package writer

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/internal/metadata"
	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

// JSONLinesWriter emits one JSON object per line, flushed after every
// record. Closing it records a result_file artifact and, if the
// underlying writer is a file, closes the handle.
type JSONLinesWriter struct {
	mu           sync.Mutex
	w            *bufio.Writer
	closer       io.Closer
	path         string
	pretty       bool
	metadataSink metadata.MetadataSink
}

// NewJSONLinesWriter opens path for writing (truncating any existing
// file). pretty controls whether each record is indented.
func NewJSONLinesWriter(path string, pretty bool, metadataSink metadata.MetadataSink) (*JSONLinesWriter, failure.ClassifiedError) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &SinkError{Message: err.Error(), Cause: ErrCauseInvalidDestination}
	}
	return &JSONLinesWriter{
		w:            bufio.NewWriter(f),
		closer:       f,
		path:         path,
		pretty:       pretty,
		metadataSink: metadataSink,
	}, nil
}

func (jw *JSONLinesWriter) WriteResult(result detect.Result) failure.ClassifiedError {
	return jw.writeLine(result)
}

func (jw *JSONLinesWriter) WriteFailure(failureRecord detect.Failure) failure.ClassifiedError {
	return jw.writeLine(failureRecord)
}

func (jw *JSONLinesWriter) writeLine(v any) failure.ClassifiedError {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	var encoded []byte
	var err error
	if jw.pretty {
		encoded, err = json.MarshalIndent(v, "", "  ")
	} else {
		encoded, err = json.Marshal(v)
	}
	if err != nil {
		sinkErr := &SinkError{Message: err.Error(), Cause: ErrCauseMarshalFailed}
		jw.recordError(sinkErr)
		return sinkErr
	}

	if _, err := jw.w.Write(encoded); err != nil {
		return jw.writeFailed(err)
	}
	if _, err := jw.w.WriteString("\n"); err != nil {
		return jw.writeFailed(err)
	}
	if err := jw.w.Flush(); err != nil {
		return jw.writeFailed(err)
	}
	return nil
}

func (jw *JSONLinesWriter) writeFailed(err error) failure.ClassifiedError {
	sinkErr := &SinkError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	jw.recordError(sinkErr)
	return sinkErr
}

func (jw *JSONLinesWriter) recordError(err *SinkError) {
	if jw.metadataSink == nil {
		return
	}
	jw.metadataSink.RecordError(
		time.Now(),
		"writer",
		"JSONLinesWriter.writeLine",
		metadata.CauseWriterFailure,
		err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrWritePath, jw.path)},
	)
}

func (jw *JSONLinesWriter) Close() failure.ClassifiedError {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.w.Flush(); err != nil {
		return jw.writeFailed(err)
	}
	if err := jw.closer.Close(); err != nil {
		return &SinkError{Message: err.Error(), Cause: ErrCauseWriteFailed}
	}
	if jw.metadataSink != nil {
		jw.metadataSink.RecordArtifact(metadata.ArtifactResultFile, jw.path, nil)
	}
	return nil
}
