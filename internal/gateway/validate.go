package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// allowedPathPrefixes is the allow-list of upstream API shapes the gateway
// will relay. Anything else is rejected before a request is built.
var allowedPathPrefixes = []string{"/r/", "/user/", "/api/"}

// SafeUpstreamPath reports whether path is safe to concatenate into an
// upstream request URL. The path segment can originate from user input
// (subreddit and username names), so this predicate is the sole defense
// against path traversal and SSRF injection.
func SafeUpstreamPath(path string) bool {
	if path == "" || !strings.HasPrefix(path, "/") {
		return false
	}
	if strings.HasPrefix(path, "//") {
		return false
	}
	if strings.Contains(path, "#") {
		return false
	}
	lower := strings.ToLower(path)
	if strings.Contains(lower, "http:") || strings.Contains(lower, "https:") {
		return false
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return false
		}
	}
	for _, prefix := range allowedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SameOrigin reports whether the request's declared origin matches the
// service's own configured origin. Requests declaring no origin at all are
// rejected; mutating endpoints must only ever be called from our own pages.
func SameOrigin(r *http.Request, configuredOrigin string) bool {
	declared := r.Header.Get("Origin")
	if declared == "" {
		if referer := r.Header.Get("Referer"); referer != "" {
			if u, err := url.Parse(referer); err == nil {
				declared = u.Scheme + "://" + u.Host
			}
		}
	}
	if declared == "" {
		return false
	}
	return strings.EqualFold(strings.TrimRight(declared, "/"), strings.TrimRight(configuredOrigin, "/"))
}
