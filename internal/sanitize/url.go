package sanitize

import (
	"net/url"
	"strings"
)

// trackingParams are removed from every kept URL.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term",
	"gclid", "fbclid", "msclkid", "_ga", "mc_eid",
}

// cleanURL returns v if it is an http(s) URL on an allowed host, minus
// tracking parameters. Anything else becomes "".
func (s *Sanitizer) cleanURL(v any) string {
	str, ok := v.(string)
	if !ok {
		return ""
	}
	str = strings.TrimSpace(str)
	if str == "" || len(str) > MaxURLLen {
		return ""
	}

	u, err := url.Parse(str)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if !s.hostAllowed(u.Hostname()) {
		return ""
	}

	if u.RawQuery != "" {
		q := u.Query()
		removed := false
		for _, p := range trackingParams {
			if q.Has(p) {
				q.Del(p)
				removed = true
			}
		}
		if removed {
			u.RawQuery = q.Encode()
		}
	}

	out := u.String()
	if len(out) > MaxURLLen {
		return ""
	}
	return out
}

// hostAllowed reports whether host equals an allowed host or is a subdomain of one.
func (s *Sanitizer) hostAllowed(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, allowed := range s.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
