// Package filter classifies candidate URLs against a denylist of non-article
// platforms (video, photo and social networks).
package filter

import (
	"net/url"
	"strings"
)

// DefaultBlockedDomains are platforms whose pages never yield article text.
var DefaultBlockedDomains = []string{
	"youtube.com",
	"youtu.be",
	"instagram.com",
	"facebook.com",
	"fb.watch",
	"tiktok.com",
	"twitter.com",
	"x.com",
	"vimeo.com",
	"flickr.com",
	"pinterest.com",
}

// Config lists the blocked domains. Entries may be bare hosts ("youtube.com")
// or explicit wildcards (".youtube.com", "*.youtube.com"); every entry also
// blocks its subdomains.
type Config struct {
	BlockedDomains []string
}

// Filter matches hosts against the denylist. The zero value blocks nothing
// but still rejects malformed URLs.
type Filter struct {
	domains map[string]struct{}
}

// New builds a Filter from cfg.
func New(cfg Config) *Filter {
	f := &Filter{domains: make(map[string]struct{}, len(cfg.BlockedDomains))}
	for _, raw := range cfg.BlockedDomains {
		value := normalizeHost(raw)
		value = strings.TrimPrefix(value, "*.")
		value = strings.TrimPrefix(value, ".")
		if value == "" {
			continue
		}
		f.domains[value] = struct{}{}
	}
	return f
}

// IsBlocked reports whether rawURL must be skipped. URLs without a parseable
// host are blocked.
func (f *Filter) IsBlocked(rawURL string) bool {
	blocked, _ := f.Match(rawURL)
	return blocked
}

// Match is IsBlocked plus a short human reason for the decision.
func (f *Filter) Match(rawURL string) (bool, string) {
	host, ok := Host(rawURL)
	if !ok {
		return true, "malformed url"
	}
	if f == nil {
		return false, ""
	}
	if rule, hit := f.lookup(host); hit {
		return true, "blocked domain " + rule
	}
	return false, ""
}

// lookup walks host and each parent domain ("a.b.c" -> "b.c" -> "c").
func (f *Filter) lookup(host string) (string, bool) {
	for candidate := host; candidate != ""; {
		if _, ok := f.domains[candidate]; ok {
			return candidate, true
		}
		idx := strings.IndexByte(candidate, '.')
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}
	return "", false
}

// Host extracts the lower-cased host of rawURL without port or trailing dot.
func Host(rawURL string) (string, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := normalizeHost(u.Hostname())
	if host == "" || strings.ContainsAny(host, " /\\") {
		return "", false
	}
	return host, true
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.TrimSpace(strings.ToLower(h)), ".")
}
