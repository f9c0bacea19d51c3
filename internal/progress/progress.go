// Package progress tracks run-wide completion, success/failure, and
// HubSpot-detection statistics, and renders them in the three styles the
// operator can select: compact, detailed, and json.
package progress

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/whitehat-seo/hubspot-crawler/internal/detect"
	"github.com/whitehat-seo/hubspot-crawler/pkg/setutil"
)

// Style selects a rendering for Tracker.Render.
type Style string

const (
	StyleCompact  Style = "compact"
	StyleDetailed Style = "detailed"
	StyleJSON     Style = "json"
)

// Tracker accumulates crawl statistics under a mutex; every public
// method is safe to call concurrently from worker goroutines.
type Tracker struct {
	mu sync.Mutex

	totalURLs int
	startTime time.Time

	completed int
	success   int
	failure   int

	hubspotFound int
	tracking     int
	cmsHosting   int
	forms        int
	chat         int
	video        int
	meetings     int
	email        int

	definitive int
	strong     int
	moderate   int
	weak       int

	hubIDs setutil.Set[int]
}

// New creates a Tracker for a run of totalURLs items, with the clock
// starting now.
func New(totalURLs int) *Tracker {
	return &Tracker{
		totalURLs: totalURLs,
		startTime: time.Now(),
		hubIDs:    setutil.NewSet[int](),
	}
}

// RecordSuccess folds a successful detection result into the run
// statistics and marks one more completion.
func (t *Tracker) RecordSuccess(result detect.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	t.success++

	summary := result.Summary
	hasHubspot := summary.Tracking || summary.CMSHosting ||
		summary.Features.Forms || summary.Features.Chat ||
		summary.Features.CTAsLegacy || summary.Features.Meetings ||
		summary.Features.Video || summary.Features.EmailTrackingIndicators

	if hasHubspot {
		t.hubspotFound++
	}
	if summary.Tracking {
		t.tracking++
	}
	if summary.CMSHosting {
		t.cmsHosting++
	}
	if summary.Features.Forms {
		t.forms++
	}
	if summary.Features.Chat {
		t.chat++
	}
	if summary.Features.Video {
		t.video++
	}
	if summary.Features.Meetings {
		t.meetings++
	}
	if summary.Features.EmailTrackingIndicators {
		t.email++
	}

	switch summary.Confidence {
	case detect.Definitive:
		t.definitive++
	case detect.Strong:
		t.strong++
	case detect.Moderate:
		t.moderate++
	case detect.Weak:
		t.weak++
	}

	for _, id := range result.HubIDs {
		t.hubIDs.Add(id)
	}
}

// RecordFailure marks one more completion that did not succeed.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	t.failure++
}

type snapshot struct {
	completed, total, success, failure int
	elapsed, rate, eta                 float64
	hubspotFound                       int
	tracking, cmsHosting               int
	forms, chat, video, meetings, email int
	definitive, strong, moderate, weak int
	uniqueHubIDs                       int
}

func (t *Tracker) snapshot() snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(t.completed) / elapsed
	}
	eta := 0.0
	if rate > 0 {
		eta = float64(t.totalURLs-t.completed) / rate
	}

	return snapshot{
		completed:    t.completed,
		total:        t.totalURLs,
		success:      t.success,
		failure:      t.failure,
		elapsed:      elapsed,
		rate:         rate,
		eta:          eta,
		hubspotFound: t.hubspotFound,
		tracking:     t.tracking,
		cmsHosting:   t.cmsHosting,
		forms:        t.forms,
		chat:         t.chat,
		video:        t.video,
		meetings:     t.meetings,
		email:        t.email,
		definitive:   t.definitive,
		strong:       t.strong,
		moderate:     t.moderate,
		weak:         t.weak,
		uniqueHubIDs: t.hubIDs.Size(),
	}
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func percentage(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

// Render formats the tracker's current state according to style.
func (t *Tracker) Render(style Style) string {
	s := t.snapshot()

	switch style {
	case StyleJSON:
		return s.renderJSON()
	case StyleDetailed:
		return s.renderDetailed()
	default:
		return s.renderCompact()
	}
}

func (s snapshot) renderCompact() string {
	line1 := fmt.Sprintf(
		"Progress: %d/%d (%.1f%%) | Success: %d | Failed: %d | Rate: %.1f URL/s | Elapsed: %s | ETA: %s",
		s.completed, s.total, percentage(s.completed, s.total), s.success, s.failure, s.rate,
		formatDuration(s.elapsed), formatDuration(s.eta),
	)
	if s.success == 0 {
		return line1
	}
	line2 := fmt.Sprintf(
		"HubSpot Found: %d/%d (%.1f%%) | Hub IDs: %d unique",
		s.hubspotFound, s.success, percentage(s.hubspotFound, s.success), s.uniqueHubIDs,
	)
	return strings.Join([]string{line1, line2}, "\n")
}

func (s snapshot) renderDetailed() string {
	lines := []string{s.renderCompact()}
	if s.success == 0 {
		return lines[0]
	}
	lines = append(lines, fmt.Sprintf(
		"Tracking: %d | CMS: %d | Forms: %d | Chat: %d | Video: %d | Meetings: %d | Email: %d",
		s.tracking, s.cmsHosting, s.forms, s.chat, s.video, s.meetings, s.email,
	))
	lines = append(lines, fmt.Sprintf(
		"Confidence: Definitive: %d | Strong: %d | Moderate: %d | Weak: %d",
		s.definitive, s.strong, s.moderate, s.weak,
	))
	return strings.Join(lines, "\n")
}

func (s snapshot) renderJSON() string {
	data := map[string]any{
		"progress": map[string]any{
			"completed":  s.completed,
			"total":      s.total,
			"percentage": round2(percentage(s.completed, s.total)),
			"success":    s.success,
			"failed":     s.failure,
		},
		"performance": map[string]any{
			"rate_urls_per_sec": round2(s.rate),
			"elapsed_seconds":   round2(s.elapsed),
			"eta_seconds":       round2(s.eta),
		},
		"hubspot_detection": map[string]any{
			"found":          s.hubspotFound,
			"tracking":       s.tracking,
			"cms":            s.cmsHosting,
			"forms":          s.forms,
			"chat":           s.chat,
			"video":          s.video,
			"meetings":       s.meetings,
			"email":          s.email,
			"unique_hub_ids": s.uniqueHubIDs,
		},
		"confidence": map[string]any{
			"definitive": s.definitive,
			"strong":     s.strong,
			"moderate":   s.moderate,
			"weak":       s.weak,
		},
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
