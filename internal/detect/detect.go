package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/whitehat-seo/hubspot-crawler/internal/patterns"
)

// hubIDFallback extracts a tenant id from a tracking URL when the
// matching pattern's own capture group came up empty.
var hubIDFallback = regexp.MustCompile(`(?i)(?:hs-scripts\.com|hs-analytics\.net)/(?:analytics/\d+/)?(\d+)\.js`)

func truncate(s string) string {
	if len(s) <= maxMatchLen {
		return s
	}
	return s[:maxMatchLen]
}

func intPtr(v int) *int {
	return &v
}

func parseHubID(raw string) *int {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return intPtr(n)
}

// DetectHTML scans a fetched HTML body against the pattern table and
// returns the evidence it supports. It is a pure function: same body,
// same evidence, every time.
func DetectHTML(body string) []Evidence {
	var ev []Evidence

	if m := patterns.Get(patterns.TrackingLoaderScript).FindStringSubmatch(body); m != nil {
		ev = append(ev, Evidence{CategoryTracking, string(patterns.TrackingLoaderScript), truncate(m[0]), SourceHTML, parseHubID(m[1]), Definitive, nil})
	} else if m := patterns.Get(patterns.TrackingScriptAny).FindStringSubmatch(body); m != nil {
		var hubID *int
		if len(m) > 1 {
			hubID = parseHubID(m[1])
		}
		ev = append(ev, Evidence{CategoryTracking, string(patterns.TrackingScriptAny), truncate(m[0]), SourceHTML, hubID, Strong, nil})
	}

	if m := patterns.Get(patterns.AnalyticsCore).FindStringSubmatch(body); m != nil {
		ev = append(ev, Evidence{CategoryTracking, string(patterns.AnalyticsCore), truncate(m[0]), SourceHTML, parseHubID(m[1]), Strong, nil})
	}

	if m := patterns.Get(patterns.HsqPresence).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryTracking, string(patterns.HsqPresence), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.BannerHelper).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryTracking, string(patterns.BannerHelper), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.URLParamsHs).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryTracking, string(patterns.URLParamsHs), truncate(m), SourceHTML, nil, Moderate, nil})
	}

	for _, m := range patterns.Get(patterns.CookieAny).FindAllString(body, -1) {
		ev = append(ev, Evidence{CategoryCookies, string(patterns.CookieAny), truncate(m), SourceHTML, nil, Moderate, nil})
	}

	mFormsLoader := patterns.Get(patterns.FormsV2Loader).FindString(body)
	mFormsCreate := patterns.Get(patterns.FormsCreateCall).FindString(body)
	if mFormsLoader != "" {
		conf := Strong
		if mFormsCreate != "" {
			conf = Definitive
		}
		ev = append(ev, Evidence{CategoryForms, string(patterns.FormsV2Loader), truncate(mFormsLoader), SourceHTML, nil, conf, nil})
	}
	if mFormsCreate != "" {
		ev = append(ev, Evidence{CategoryForms, string(patterns.FormsCreateCall), truncate(mFormsCreate), SourceHTML, nil, Definitive, nil})
	}
	if m := patterns.Get(patterns.FormsHiddenHsContext).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryForms, string(patterns.FormsHiddenHsContext), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.ChatUsemessagesJS).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryChat, string(patterns.ChatUsemessagesJS), truncate(m), SourceHTML, nil, Definitive, nil})
	}
	if m := patterns.Get(patterns.ChatUsemessagesAPI).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryChat, string(patterns.ChatUsemessagesAPI), truncate(m), SourceHTML, nil, Definitive, nil})
	}
	if m := patterns.Get(patterns.CookieMessagesUtk).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryChat, string(patterns.CookieMessagesUtk), truncate(m), SourceHTML, nil, Strong, nil})
	}

	mCtaLoader := patterns.Get(patterns.CtaLoaderLegacy).FindString(body)
	mCtaCall := patterns.Get(patterns.CtaLoadCall).FindString(body)
	if mCtaLoader != "" {
		conf := Strong
		if mCtaCall != "" {
			conf = Definitive
		}
		ev = append(ev, Evidence{CategoryCTAs, string(patterns.CtaLoaderLegacy), truncate(mCtaLoader), SourceHTML, nil, conf, nil})
	}
	if mCtaCall != "" {
		ev = append(ev, Evidence{CategoryCTAs, string(patterns.CtaLoadCall), truncate(mCtaCall), SourceHTML, nil, Definitive, nil})
	}
	if m := patterns.Get(patterns.CtaRedirectLink).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryCTAs, string(patterns.CtaRedirectLink), truncate(m), SourceHTML, nil, Definitive, nil})
	}

	if m := patterns.Get(patterns.MeetingsEmbedJS).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryMeetings, string(patterns.MeetingsEmbedJS), truncate(m), SourceHTML, nil, Strong, nil})
	}
	if m := patterns.Get(patterns.MeetingsIframe).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryMeetings, string(patterns.MeetingsIframe), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.CmsMetaGenerator).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryCMS, string(patterns.CmsMetaGenerator), truncate(m), SourceHTML, nil, Strong, nil})
	}
	if mWrapper := patterns.Get(patterns.CmsWrapperClass).FindString(body); mWrapper != "" {
		if patterns.Get(patterns.CmsInternalPaths).MatchString(body) {
			ev = append(ev, Evidence{CategoryCMS, "cms_wrapper_with_hcms", truncate(mWrapper), SourceHTML, nil, Strong, nil})
		}
	}
	if m := patterns.Get(patterns.CmsHostHsSites).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryCMS, string(patterns.CmsHostHsSites), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.CmsFilesHubspotusercontent).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryFiles, string(patterns.CmsFilesHubspotusercontent), truncate(m), SourceHTML, nil, Moderate, nil})
	}
	if m := patterns.Get(patterns.CmsFilesHubfsPath).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryFiles, string(patterns.CmsFilesHubfsPath), truncate(m), SourceHTML, nil, Moderate, nil})
	}

	if m := patterns.Get(patterns.VideoHubspotvideo).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryVideo, string(patterns.VideoHubspotvideo), truncate(m), SourceHTML, nil, Strong, nil})
	}

	if m := patterns.Get(patterns.EmailHubspotMarketingClick).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryEmail, string(patterns.EmailHubspotMarketingClick), truncate(m), SourceHTML, nil, Strong, nil})
	}
	if m := patterns.Get(patterns.EmailHubspotlinks).FindString(body); m != "" {
		ev = append(ev, Evidence{CategoryEmail, string(patterns.EmailHubspotlinks), truncate(m), SourceHTML, nil, Moderate, nil})
	}

	return dedup(ev)
}

// networkTrackingIDs are the pattern ids scanned for tenant-id extraction
// against each resource URL; every match is definitive (a real request).
var networkTrackingIDs = []patterns.ID{
	patterns.TrackingLoaderScript, patterns.AnalyticsCore, patterns.BeaconPtq,
}

type networkRule struct {
	id         patterns.ID
	category   Category
	confidence Confidence
}

var networkRules = []networkRule{
	{patterns.FormsV2Loader, CategoryForms, Definitive},
	{patterns.FormsSubmitV2, CategoryForms, Definitive},
	{patterns.FormsSubmitV3, CategoryForms, Definitive},
	{patterns.ChatUsemessagesAPI, CategoryChat, Definitive},
	{patterns.ChatUsemessagesJS, CategoryChat, Definitive},
	{patterns.CtaLoaderLegacy, CategoryCTAs, Definitive},
	{patterns.CtaRedirectLink, CategoryCTAs, Definitive},
	{patterns.MeetingsEmbedJS, CategoryMeetings, Definitive},
	{patterns.MeetingsIframe, CategoryMeetings, Strong},
	{patterns.CmsHostHsSites, CategoryCMS, Strong},
	{patterns.CmsFilesHubspotusercontent, CategoryFiles, Moderate},
	{patterns.VideoHubspotvideo, CategoryVideo, Strong},
	{patterns.EmailHubspotMarketingClick, CategoryEmail, Strong},
	{patterns.EmailHubspotSalesClick, CategoryEmail, Strong},
	{patterns.EmailHubspotlinks, CategoryEmail, Moderate},
}

// DetectNetwork scans a list of sub-resource URLs against the network
// subset of the pattern table. Every URL is evaluated independently and
// in isolation from the page body.
func DetectNetwork(resourceURLs []string) []Evidence {
	var ev []Evidence

	for _, u := range resourceURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}

		for _, id := range networkTrackingIDs {
			rx := patterns.Get(id)
			m := rx.FindStringSubmatch(u)
			if m == nil {
				continue
			}
			var hubID *int
			if len(m) > 1 {
				hubID = parseHubID(m[1])
			}
			if hubID == nil {
				if fb := hubIDFallback.FindStringSubmatch(u); fb != nil {
					hubID = parseHubID(fb[1])
				}
			}
			ev = append(ev, Evidence{CategoryTracking, string(id), truncate(u), SourceURL, hubID, Definitive, nil})
		}

		for _, rule := range networkRules {
			if patterns.Get(rule.id).MatchString(u) {
				ev = append(ev, Evidence{rule.category, string(rule.id), truncate(u), SourceURL, nil, rule.confidence, nil})
			}
		}
	}

	return dedup(ev)
}

// DetectHeaderCookies scans every Set-Cookie header value for cookie-name
// matches. hubspotutk is definitive; any other cookie-name match is
// strong. Header cookies outrank body mentions because they are
// server-asserted.
func DetectHeaderCookies(setCookieValues []string) []Evidence {
	var ev []Evidence
	for _, v := range setCookieValues {
		m := patterns.Get(patterns.CookieAny).FindString(v)
		if m == "" {
			continue
		}
		conf := Strong
		if strings.Contains(strings.ToLower(m), "hubspotutk") {
			conf = Definitive
		}
		ev = append(ev, Evidence{CategoryCookies, string(patterns.CookieAny), truncate(m), SourceHeader, nil, conf, nil})
	}
	return dedup(ev)
}

// dedup removes evidence items sharing the same (category, patternId,
// source, match) tuple, preserving first-seen order.
func dedup(ev []Evidence) []Evidence {
	if len(ev) == 0 {
		return ev
	}
	seen := make(map[string]struct{}, len(ev))
	out := make([]Evidence, 0, len(ev))
	for _, e := range ev {
		key := e.dedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

func hasCategory(evidence []Evidence, cat Category) bool {
	for _, e := range evidence {
		if e.Category == cat {
			return true
		}
	}
	return false
}

// Summarise derives the deterministic aggregate summary from an evidence
// list.
func Summarise(evidence []Evidence) Summary {
	tracking := hasCategory(evidence, CategoryTracking)
	if !tracking {
		for _, e := range evidence {
			if e.Category == CategoryCookies && strings.Contains(strings.ToLower(e.Match), "hubspotutk") {
				tracking = true
				break
			}
		}
	}

	cmsHosting := false
	for _, e := range evidence {
		if e.Category == CategoryCMS && (e.Confidence == Strong || e.Confidence == Definitive) {
			cmsHosting = true
			break
		}
	}

	features := Features{
		Forms:      hasCategory(evidence, CategoryForms),
		Chat:       hasCategory(evidence, CategoryChat),
		CTAsLegacy: hasCategory(evidence, CategoryCTAs),
		Meetings:   hasCategory(evidence, CategoryMeetings),
		Video:      hasCategory(evidence, CategoryVideo),
	}
	features.EmailTrackingIndicators = hasCategory(evidence, CategoryEmail)

	var confidence Confidence
	switch {
	case len(evidence) == 0:
		confidence = Weak
	case tracking && hasDefinitiveLoader(evidence):
		confidence = Definitive
	case tracking:
		confidence = Strong
	case hasStrongOrDefinitive(evidence):
		confidence = Moderate
	default:
		confidence = Weak
	}

	return Summary{
		Tracking:   tracking,
		CMSHosting: cmsHosting,
		Features:   features,
		Confidence: confidence,
	}
}

func hasDefinitiveLoader(evidence []Evidence) bool {
	for _, e := range evidence {
		if e.PatternID == string(patterns.TrackingLoaderScript) && e.Confidence == Definitive {
			return true
		}
	}
	return false
}

func hasStrongOrDefinitive(evidence []Evidence) bool {
	for _, e := range evidence {
		if e.Confidence == Strong || e.Confidence == Definitive {
			return true
		}
	}
	return false
}

// HubIDs returns the insertion-ordered list of distinct hub ids found
// across the evidence list.
func HubIDs(evidence []Evidence) []int {
	var ids []int
	seen := make(map[int]struct{})
	for _, e := range evidence {
		if e.HubID == nil {
			continue
		}
		if _, ok := seen[*e.HubID]; ok {
			continue
		}
		seen[*e.HubID] = struct{}{}
		ids = append(ids, *e.HubID)
	}
	return ids
}

// MakeResult assembles the final Result record from the evidence an
// original/final URL pair produced. timestamp must already be formatted
// UTC ISO-8601 with a trailing "Z" (spec.md's result-record contract);
// MakeResult does not touch wall-clock time itself so it stays pure.
//
// When httpStatus is >= 400 there was no usable redirect chain to report,
// so finalURL collapses to originalURL (spec.md §3/§8).
func MakeResult(originalURL, finalURL, timestamp string, evidence []Evidence, headers map[string]string, httpStatus *int, pageMetadata *PageMetadata) Result {
	summary := Summarise(evidence)
	hubIDs := HubIDs(evidence)

	hubspotDetected := summary.Tracking || summary.CMSHosting ||
		summary.Features.Forms || summary.Features.Chat || summary.Features.CTAsLegacy ||
		summary.Features.Meetings || summary.Features.Video || summary.Features.EmailTrackingIndicators

	if headers == nil {
		headers = map[string]string{}
	}
	if evidence == nil {
		evidence = []Evidence{}
	}
	if hubIDs == nil {
		hubIDs = []int{}
	}
	if httpStatus != nil && *httpStatus >= 400 {
		finalURL = originalURL
	}

	return Result{
		OriginalURL:     originalURL,
		FinalURL:        finalURL,
		Timestamp:       timestamp,
		HubspotDetected: hubspotDetected,
		HubIDs:          hubIDs,
		Summary:         summary,
		Evidence:        evidence,
		Headers:         headers,
		HTTPStatus:      httpStatus,
		PageMetadata:    pageMetadata,
	}
}
