// url.go — URL parsing utilities: origin extraction and site comparison.
package util

import (
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// ExtractOrigin extracts the origin (scheme://host[:port]) from a URL.
// Returns empty string for data: URLs, blob: URLs (after extracting nested origin),
// and malformed URLs.
func ExtractOrigin(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ""
	}

	// blob:https://example.com/uuid -> https://example.com
	rawURL = strings.TrimPrefix(rawURL, "blob:")

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// ExtractHost returns the lowercased hostname of rawURL without port.
func ExtractHost(rawURL string) string {
	parsed, err := url.Parse(strings.TrimPrefix(rawURL, "blob:"))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// RegistrableDomain returns the eTLD+1 of host ("www.news.example.co.uk" ->
// "example.co.uk"). Hosts that are themselves public suffixes, IP literals
// and localhost are returned unchanged.
func RegistrableDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return host
	}
	return domain
}

// SameSite reports whether a cookie domain belongs to the same registrable
// domain as pageURL.
func SameSite(cookieDomain, pageURL string) bool {
	pageHost := ExtractHost(pageURL)
	if pageHost == "" || cookieDomain == "" {
		return false
	}
	return RegistrableDomain(cookieDomain) == RegistrableDomain(pageHost)
}

// IsChromeURL reports whether rawURL is a browser-internal page that is never
// analyzed (chrome://, chrome-extension://, devtools://, about:).
func IsChromeURL(rawURL string) bool {
	for _, prefix := range []string{"chrome://", "chrome-extension://", "devtools://", "about:", "edge://"} {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}
