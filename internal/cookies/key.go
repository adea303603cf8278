// key.go — Cookie identity keys.
package cookies

import (
	"errors"
	"strings"
)

// ErrNoIdentity is returned for observations whose name or domain is empty.
var ErrNoIdentity = errors.New("cookies: observation has no identity")

// keySep cannot appear in a cookie name, a host name, or a cookie path
// without being percent-encoded by the browser.
const keySep = ";"

// CanonicalDomain lowercases domain and strips a leading dot so that host-only
// and domain cookies for the same host share an identity.
func CanonicalDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Key returns the identity key name;domain;path. An empty path means "/".
func Key(name, domain, path string) (string, error) {
	name = strings.TrimSpace(name)
	domain = CanonicalDomain(domain)
	if name == "" || domain == "" {
		return "", ErrNoIdentity
	}
	if path == "" {
		path = "/"
	}
	return name + keySep + domain + keySep + path, nil
}
