// Package urlsource reads the run's input URL list: one URL per line,
// UTF-8, blank lines and #-comments ignored, de-duplicated preserving
// first-seen order.
package urlsource

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/whitehat-seo/hubspot-crawler/pkg/failure"
)

type SourceErrorCause string

const (
	ErrCauseOpenFailed SourceErrorCause = "open failed"
	ErrCauseReadFailed SourceErrorCause = "read failed"
)

type SourceError struct {
	Message string
	Cause   SourceErrorCause
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("urlsource error: %s: %s", e.Cause, e.Message)
}

func (e *SourceError) Severity() failure.Severity {
	return failure.SeverityFatal
}

// Load reads path and returns the de-duplicated, ordered list of URLs to
// crawl. A line is skipped if, after trimming whitespace, it is empty or
// starts with '#'.
func Load(path string) ([]string, failure.ClassifiedError) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{
			Message: err.Error(),
			Cause:   ErrCauseOpenFailed,
		}
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var urls []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &SourceError{
			Message: err.Error(),
			Cause:   ErrCauseReadFailed,
		}
	}

	return urls, nil
}
