// Package patterns holds the compiled, process-wide regex table the
// detection engine evaluates against page bodies and resource URLs.
package patterns

import "regexp"

// ID names one entry of the pattern table.
type ID string

const (
	TrackingLoaderScript      ID = "tracking_loader_script"
	TrackingScriptAny         ID = "tracking_script_any"
	AnalyticsCore             ID = "analytics_core"
	HsqPresence               ID = "_hsq_presence"
	BannerHelper              ID = "banner_helper"
	URLParamsHs               ID = "url_params_hs"
	CookieAny                 ID = "cookie_any"
	FormsV2Loader             ID = "forms_v2_loader"
	FormsCreateCall           ID = "forms_create_call"
	FormsHiddenHsContext      ID = "forms_hidden_hs_context"
	FormsSubmitV2             ID = "forms_submit_v2"
	FormsSubmitV3             ID = "forms_submit_v3"
	ChatUsemessagesJS         ID = "chat_usemessages_js"
	ChatUsemessagesAPI        ID = "chat_usemessages_api"
	CookieMessagesUtk         ID = "cookie_messagesUtk"
	CtaLoaderLegacy           ID = "cta_loader_legacy"
	CtaLoadCall               ID = "cta_load_call"
	CtaRedirectLink           ID = "cta_redirect_link"
	MeetingsEmbedJS           ID = "meetings_embed_js"
	MeetingsIframe            ID = "meetings_iframe"
	CmsMetaGenerator          ID = "cms_meta_generator"
	CmsWrapperClass           ID = "cms_wrapper_class"
	CmsInternalPaths          ID = "cms_internal_paths"
	CmsHostHsSites            ID = "cms_host_hs_sites"
	CmsFilesHubspotusercontent ID = "cms_files_hubspotusercontent"
	CmsFilesHubfsPath         ID = "cms_files_hubfs_path"
	VideoHubspotvideo         ID = "video_hubspotvideo"
	EmailHubspotMarketingClick ID = "email_hubspot_marketing_click"
	EmailHubspotlinks         ID = "email_hubspotlinks"
	EmailHubspotSalesClick    ID = "email_hubspot_sales_click"
	BeaconPtq                 ID = "beacon_ptq"
)

// raw holds the uncompiled pattern source, mirroring the JSON pattern file
// the original detector loaded at import time. Kept private so the table
// can only be consumed through the compiled Table below.
var raw = map[ID]string{
	TrackingLoaderScript:       `(?:<script[^>]+id=["']hs-script-loader["'][^>]+src=["'][^"']*)?hs-scripts\.com/(\d+)\.js`,
	TrackingScriptAny:          `hs-scripts\.com/(\d+)?\.?js`,
	AnalyticsCore:              `hs-analytics\.net/analytics/\d+/(\d+)\.js`,
	HsqPresence:                `window\._hsq\s*=|_hsq\.push\(`,
	BannerHelper:               `hs-banner\.com|__hs_cookie_banner`,
	URLParamsHs:                `[?&](?:_hsenc|_hsmi|hsCtaTracking)=`,
	CookieAny:                  `\b(?:hubspotutk|__hstc|__hssc|__hssrc|messagesUtk)\b`,
	FormsV2Loader:              `js\.hsforms\.net/forms/v2(?:-legacy)?\.js`,
	FormsCreateCall:            `hbspt\.forms\.create\s*\(`,
	FormsHiddenHsContext:       `name=["']hs_context["']`,
	FormsSubmitV2:              `forms\.hs(?:forms)?\.com/(?:uploads/)?form(?:s)?/v2/[\w./-]*submit`,
	FormsSubmitV3:              `api\.hsforms\.com/submissions/v3/`,
	ChatUsemessagesJS:          `js\.usemessages\.com/conversations-embed\.js`,
	ChatUsemessagesAPI:         `api\.hubspot\.com/livechat-public/v1|api\.usemessages\.com`,
	CookieMessagesUtk:          `\bmessagesUtk\b`,
	CtaLoaderLegacy:            `(?:js|no-cache)\.hubspot\.com/cta/current\.js`,
	CtaLoadCall:                `hbspt\.cta\.load\s*\(`,
	CtaRedirectLink:            `cta-redirect\.hubspot\.com`,
	MeetingsEmbedJS:            `static\.hsappstatic\.net/MeetingsEmbed/|meetings-embed\.js`,
	MeetingsIframe:             `meetings\.hubspot\.com/[\w-]+`,
	CmsMetaGenerator:           `<meta[^>]+name=["']generator["'][^>]+content=["']HubSpot`,
	CmsWrapperClass:            `class=["'][^"']*\bhs_cos_wrapper\b`,
	CmsInternalPaths:           `/_hcms/(?:api|forms|editor)/`,
	CmsHostHsSites:             `[\w.-]+\.hs-sites(?:-eu1)?\.com`,
	CmsFilesHubspotusercontent: `hubspotusercontent(?:-na1|-eu1)?\.net`,
	CmsFilesHubfsPath:          `/hubfs/[\w./-]+`,
	VideoHubspotvideo:          `play\.hubspotvideo\.com|hubspotvideo\.com/hs-fs`,
	EmailHubspotMarketingClick: `t\.hs-sites\.com/e2t/|click\.hubspotemail\.net`,
	EmailHubspotlinks:          `[\w.-]+\.hubspotlinks\.com`,
	EmailHubspotSalesClick:     `click\.hs-sales-eng\.com|hubspotsales\.com/e2t/`,
	BeaconPtq:                  `hs-analytics\.net/.*[?&]ptq=`,
}

// Table is the compiled, case-insensitive pattern set, built once at
// package init and shared read-only across the whole run.
var Table = compile(raw)

func compile(src map[ID]string) map[ID]*regexp.Regexp {
	out := make(map[ID]*regexp.Regexp, len(src))
	for id, pattern := range src {
		out[id] = regexp.MustCompile(`(?im)` + pattern)
	}
	return out
}

// Get returns the compiled pattern for id, or nil if id is not in the table.
func Get(id ID) *regexp.Regexp {
	return Table[id]
}
