// parse.go — Thin adapters from RFC 6265 header text to ParsedCookie.
// Header grammar itself is delegated to net/http.
package cookies

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/brennhill/psat-core/internal/types"
	"github.com/brennhill/psat-core/internal/util"
)

// ParseContext carries what the header alone does not say.
type ParseContext struct {
	RequestURL  string    // URL of the request/response or document
	TopLevelURL string    // tab URL, used for partition keys
	Now         time.Time // reference time for Max-Age
}

func (pc ParseContext) now() time.Time {
	if pc.Now.IsZero() {
		return time.Now()
	}
	return pc.Now
}

// ParseSetCookie parses one Set-Cookie line (or a document.cookie write).
func ParseSetCookie(line string, pc ParseContext) (types.ParsedCookie, error) {
	c, err := http.ParseSetCookie(strings.TrimSpace(line))
	if err != nil {
		return types.ParsedCookie{}, fmt.Errorf("cookies: parse set-cookie: %w", err)
	}
	pc2 := types.ParsedCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: sameSiteString(c.SameSite),
		Priority: unparsedAttr(c.Unparsed, "priority"),
		Size:     len(c.Name) + len(c.Value),
	}
	if pc2.Domain == "" {
		pc2.Domain = util.ExtractHost(pc.RequestURL)
	} else {
		// A Domain attribute makes a domain cookie; report it the way the
		// browser does, with a leading dot.
		pc2.Domain = "." + strings.TrimPrefix(strings.ToLower(pc2.Domain), ".")
	}
	if pc2.Path == "" {
		pc2.Path = DefaultPath(pc.RequestURL)
	}
	switch {
	case c.MaxAge > 0:
		pc2.Expires = pc.now().Add(time.Duration(c.MaxAge) * time.Second).UTC().Format(time.RFC3339)
	case c.MaxAge < 0:
		pc2.Expires = time.Unix(0, 0).UTC().Format(time.RFC3339)
	case !c.Expires.IsZero():
		pc2.Expires = c.Expires.UTC().Format(time.RFC3339)
	default:
		pc2.Expires = types.SessionExpiry
	}
	if c.Partitioned {
		pc2.PartitionKey = topLevelSite(pc.TopLevelURL)
	}
	if pc2.Name == "" {
		return pc2, ErrNoIdentity
	}
	return pc2, nil
}

// ParseDocumentCookie parses a document.cookie assignment. Scripts cannot set
// HttpOnly, so the flag is always cleared.
func ParseDocumentCookie(str string, pc ParseContext) (types.ParsedCookie, error) {
	c, err := ParseSetCookie(str, pc)
	c.HTTPOnly = false
	return c, err
}

// ParseCookieHeader parses a request Cookie header. The header carries only
// name=value pairs; domain comes from the request host and path defaults to "/".
func ParseCookieHeader(header string, pc ParseContext) ([]types.ParsedCookie, error) {
	parsed, err := http.ParseCookie(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("cookies: parse cookie header: %w", err)
	}
	host := util.ExtractHost(pc.RequestURL)
	out := make([]types.ParsedCookie, 0, len(parsed))
	for _, c := range parsed {
		out = append(out, types.ParsedCookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  host,
			Path:    "/",
			Expires: types.SessionExpiry,
			Size:    len(c.Name) + len(c.Value),
		})
	}
	return out, nil
}

// ParseSetCookieHeader splits a Set-Cookie header value that may carry several
// newline-separated lines (as CDP and webRequest report them).
func ParseSetCookieHeader(value string, pc ParseContext) ([]types.ParsedCookie, []error) {
	var out []types.ParsedCookie
	var errs []error
	for _, line := range strings.Split(value, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, err := ParseSetCookie(line, pc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

// ExpiresFromEpoch renders a CDP expires value (seconds since epoch, or -1
// for session cookies).
func ExpiresFromEpoch(sec float64, session bool) string {
	if session || sec <= 0 {
		return types.SessionExpiry
	}
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC().Format(time.RFC3339)
}

// DefaultPath implements the RFC 6265 §5.1.4 default-path of a request URL.
func DefaultPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	if strings.Count(u.Path, "/") <= 1 {
		return "/"
	}
	return path.Dir(u.Path)
}

func sameSiteString(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	}
	return ""
}

func unparsedAttr(attrs []string, name string) string {
	for _, a := range attrs {
		k, v, ok := strings.Cut(a, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func topLevelSite(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return u.Scheme + "://" + util.RegistrableDomain(u.Hostname())
}
