// Package resource extracts sub-resource URLs and page metadata from a
// fetched HTML body, feeding both the network-evidence scan and the
// pageMetadata field of a detection result.
package resource

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// tag/attribute pairs resource URLs are pulled from. <a> tags are
// deliberately excluded to avoid navigation-link noise: this module
// never follows links, it only looks at what a page loads.
var resourceSelectors = []struct {
	tag  string
	attr string
}{
	{"script", "src"},
	{"link", "href"},
	{"iframe", "src"},
}

// ExtractURLs returns the de-duplicated, absolute sub-resource URLs a
// page references via <script src>, <link href>, and <iframe src>.
// Malformed hrefs are skipped rather than failing the whole extraction.
func ExtractURLs(body string, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	seen := make(map[string]struct{})
	var urls []string

	for _, sel := range resourceSelectors {
		doc.Find(sel.tag).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr(sel.attr)
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			parsed, err := url.Parse(href)
			if err != nil {
				return
			}
			resolved := href
			if base != nil {
				resolved = base.ResolveReference(parsed).String()
			}
			if _, dup := seen[resolved]; dup {
				return
			}
			seen[resolved] = struct{}{}
			urls = append(urls, resolved)
		})
	}

	return urls
}

// Metadata is the page title and meta description extracted from a body.
type Metadata struct {
	Title       *string
	Description *string
}

// ExtractMetadata pulls <title> and <meta name="description"> out of the
// body. A parse failure or absent tag yields a nil field rather than an
// error: page metadata is always optional.
func ExtractMetadata(body string) Metadata {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Metadata{}
	}

	var meta Metadata

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta.Title = &title
	}

	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			meta.Description = &desc
		}
	}

	return meta
}
