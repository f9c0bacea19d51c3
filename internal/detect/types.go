// Package detect implements the pattern-driven evidence engine: pure
// functions that turn a fetched page (body, sub-resource URLs, response
// headers) into an evidence list and a confidence-graded summary.
package detect

// Confidence is the four-level lattice shared by evidence items and the
// aggregate summary.
type Confidence string

const (
	Definitive Confidence = "definitive"
	Strong     Confidence = "strong"
	Moderate   Confidence = "moderate"
	Weak       Confidence = "weak"
)

// Source names where an evidence item was observed.
type Source string

const (
	SourceHTML   Source = "html"
	SourceURL    Source = "url"
	SourceHeader Source = "header"
)

// Category groups evidence by the product surface it supports.
type Category string

const (
	CategoryTracking Category = "tracking"
	CategoryCookies  Category = "cookies"
	CategoryForms    Category = "forms"
	CategoryChat     Category = "chat"
	CategoryCTAs     Category = "ctas"
	CategoryMeetings Category = "meetings"
	CategoryCMS      Category = "cms"
	CategoryFiles    Category = "files"
	CategoryVideo    Category = "video"
	CategoryEmail    Category = "email"
)

// maxMatchLen truncates an evidence match to this many bytes.
const maxMatchLen = 300

// Evidence is a single observation supporting (or refuting) a detection
// claim. Evidence items are never mutated after creation.
type Evidence struct {
	Category  Category   `json:"category"`
	PatternID string     `json:"patternId"`
	Match     string     `json:"match"`
	Source    Source     `json:"source"`
	HubID     *int       `json:"hubId,omitempty"`
	Confidence Confidence `json:"confidence"`
	Context   *string    `json:"context,omitempty"`
}

// dedupKey identifies an evidence item for deduplication purposes: the
// tuple (category, patternId, source, firstNchars(match, 300)).
func (e Evidence) dedupKey() string {
	return string(e.Category) + "\x00" + e.PatternID + "\x00" + string(e.Source) + "\x00" + e.Match
}

// Features is the per-category boolean projection of the evidence list.
type Features struct {
	Forms                   bool `json:"forms"`
	Chat                    bool `json:"chat"`
	CTAsLegacy              bool `json:"ctasLegacy"`
	Meetings                bool `json:"meetings"`
	Video                   bool `json:"video"`
	EmailTrackingIndicators bool `json:"emailTrackingIndicators"`
}

// Summary is the deterministic aggregate derived from an evidence list.
type Summary struct {
	Tracking   bool       `json:"tracking"`
	CMSHosting bool       `json:"cmsHosting"`
	Features   Features   `json:"features"`
	Confidence Confidence `json:"confidence"`
}

// PageMetadata carries the page title and meta description, when
// extracted from the fetched body.
type PageMetadata struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Result is the structured detection record emitted per URL.
type Result struct {
	OriginalURL     string            `json:"originalUrl"`
	FinalURL        string            `json:"finalUrl"`
	Timestamp       string            `json:"timestamp"`
	HubspotDetected bool              `json:"hubspotDetected"`
	HubIDs          []int             `json:"hubIds"`
	Summary         Summary           `json:"summary"`
	Evidence        []Evidence        `json:"evidence"`
	Headers         map[string]string `json:"headers"`
	HTTPStatus      *int              `json:"httpStatus,omitempty"`
	PageMetadata    *PageMetadata     `json:"pageMetadata,omitempty"`
}

// Failure is the result-shaped record emitted when every retry and
// variation for a URL is exhausted. It shares its column set with Result
// after flattening (spec.md's schema invariant): empty evidence/headers,
// hubspotDetected=false, confidence=weak, plus the attempt trail.
type Failure struct {
	OriginalURL     string            `json:"originalUrl"`
	FinalURL        string            `json:"finalUrl"`
	Timestamp       string            `json:"timestamp"`
	HubspotDetected bool              `json:"hubspotDetected"`
	HubIDs          []int             `json:"hubIds"`
	Summary         Summary           `json:"summary"`
	Evidence        []Evidence        `json:"evidence"`
	Headers         map[string]string `json:"headers"`
	Error           string            `json:"error"`
	Attempts        int               `json:"attempts"`
	AttemptedURLs   []string          `json:"attemptedUrls"`
}

// MakeFailure assembles a Failure record for a URL that exhausted every
// retry and variation.
func MakeFailure(originalURL, timestamp, errMsg string, attempts int, attemptedURLs []string) Failure {
	if attemptedURLs == nil {
		attemptedURLs = []string{}
	}
	return Failure{
		OriginalURL:     originalURL,
		FinalURL:        originalURL,
		Timestamp:       timestamp,
		HubspotDetected: false,
		HubIDs:          []int{},
		Summary:         Summary{Confidence: Weak},
		Evidence:        []Evidence{},
		Headers:         map[string]string{},
		Error:           errMsg,
		Attempts:        attempts,
		AttemptedURLs:   attemptedURLs,
	}
}
