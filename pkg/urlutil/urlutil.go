package urlutil

import (
	"net/url"
	"strings"
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Query parameters are removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Remove query parameters
	canonical.RawQuery = ""
	canonical.ForceQuery = false

	return canonical
}

// lowerASCII converts ASCII characters to lowercase; it returns s without
// allocating when s has no uppercase ASCII letter.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// Normalize prepends "https://" to rawURL if it carries no scheme or does
// not parse as a URL. It does not otherwise touch the input: a parseable,
// scheme-bearing URL passes through unchanged.
func Normalize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "https://" + rawURL
	}
	return rawURL
}

// Variations generates common spelling fixes for a URL that failed to
// fetch, in priority order: www toggle, scheme flip, trailing-slash toggle.
// The input URL itself and duplicate variations are dropped; the result is
// capped at maxVariations entries.
func Variations(rawURL string, maxVariations int) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	var candidates []string

	// 1: toggle www prefix
	withWWW := *parsed
	if strings.HasPrefix(parsed.Host, "www.") {
		withWWW.Host = strings.TrimPrefix(parsed.Host, "www.")
	} else {
		withWWW.Host = "www." + parsed.Host
	}
	candidates = append(candidates, withWWW.String())

	// 2: flip scheme
	withScheme := *parsed
	if parsed.Scheme == "https" {
		withScheme.Scheme = "http"
	} else {
		withScheme.Scheme = "https"
	}
	candidates = append(candidates, withScheme.String())

	// 3: add trailing slash
	if !strings.HasSuffix(parsed.Path, "/") {
		withSlash := *parsed
		withSlash.Path = parsed.Path + "/"
		candidates = append(candidates, withSlash.String())
	}

	// 4: remove trailing slash
	if strings.HasSuffix(parsed.Path, "/") && parsed.Path != "/" {
		withoutSlash := *parsed
		withoutSlash.Path = strings.TrimRight(parsed.Path, "/")
		candidates = append(candidates, withoutSlash.String())
	}

	seen := make(map[string]struct{}, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == rawURL {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}

	if maxVariations >= 0 && len(result) > maxVariations {
		result = result[:maxVariations]
	}
	return result
}
