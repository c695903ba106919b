package utilities

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

// GetIPAddress returns the real IP address of the HTTP request. It parses the
// X-Forwarded-For header.
func GetIPAddress(r *http.Request) string {
	if r.Header != nil {
		xForwardedFor := r.Header.Get("X-Forwarded-For")
		if xForwardedFor != "" {
			ips := strings.Split(xForwardedFor, ",")
			for i := range ips {
				ips[i] = strings.TrimSpace(ips[i])
			}

			for _, ip := range ips {
				if ip != "" {
					parsed := net.ParseIP(ip)
					if parsed == nil {
						continue
					}

					return parsed.String()
				}
			}
		}
	}

	ipPort := r.RemoteAddr
	ip, _, err := net.SplitHostPort(ipPort)
	if err != nil {
		return ipPort
	}

	return ip
}

var decimalIPAddressPattern = regexp.MustCompile("^[0-9]+$")

// IsRedirectURLValid reports whether a redirect or callback target may be
// handed back to a browser: the site itself, a loopback address, or a match
// against the configured allow list.
func IsRedirectURLValid(config *conf.GlobalConfiguration, redirectURL string) bool {
	if redirectURL == "" {
		return false
	}

	base, berr := url.Parse(config.SiteURL)
	refurl, rerr := url.Parse(redirectURL)

	// As long as the referrer came from the site, we will redirect back there
	if berr == nil && rerr == nil && base.Hostname() == refurl.Hostname() {
		return true
	}

	if rerr != nil {
		// redirect URL is for some reason invalid
		return false
	}

	if decimalIPAddressPattern.MatchString(refurl.Hostname()) {
		// IP address in decimal form also not allowed in redirects!
		return false
	} else if ip := net.ParseIP(refurl.Hostname()); ip != nil {
		return ip.IsLoopback()
	}

	for _, pattern := range config.URIAllowListMap {
		if pattern.Match(refurl.String()) {
			return true
		}
	}

	return false
}
