package auth

import (
	"net/url"
	"strings"
)

// RedirectURIAllowed checks a post-login redirect target against the
// configured allow-list: scheme and host must match exactly, the path must
// equal the allowed entry's path or sit under it. Native deep links
// (custom scheme, no host-based web origin) and localhost development
// URLs pass a separate rule.
func RedirectURIAllowed(rawURI string, allowed []string) bool {
	u, err := url.Parse(rawURI)
	if err != nil || u.Scheme == "" {
		return false
	}

	if isNativeDeepLink(u) || isLocalhostDev(u) {
		return true
	}

	for _, entry := range allowed {
		a, err := url.Parse(entry)
		if err != nil || a.Scheme == "" || a.Host == "" {
			continue
		}
		if u.Scheme != a.Scheme || u.Host != a.Host {
			continue
		}
		if pathWithin(u.Path, a.Path) {
			return true
		}
	}
	return false
}

// ReturnToAllowed checks an in-app return path: it must be a relative path
// starting with a single "/", with no scheme, authority or backslash
// smuggling.
func ReturnToAllowed(returnTo string) bool {
	if returnTo == "" {
		return true
	}
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return false
	}
	if strings.Contains(returnTo, "\\") {
		return false
	}
	// A leading single slash already rules out scheme-prefixed and
	// protocol-relative targets; anything else is treated as an in-app path.
	return true
}

// isNativeDeepLink accepts app-scheme URIs such as waitroom://auth.
func isNativeDeepLink(u *url.URL) bool {
	return u.Scheme != "http" && u.Scheme != "https"
}

// isLocalhostDev accepts http://localhost[:port] and http://127.0.0.1[:port].
func isLocalhostDev(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// pathWithin reports whether p equals base or is nested under it.
func pathWithin(p, base string) bool {
	if base == "" || base == "/" {
		return true
	}
	if p == base {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(base, "/")+"/")
}
