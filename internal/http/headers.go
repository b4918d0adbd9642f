package http

import "strings"

// DefaultUserAgent is sent when no rule or default overrides User-Agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/56.0.2924.87 Safari/537.36"

// HeaderRule applies Headers to every URL starting with Prefix.
type HeaderRule struct {
	Prefix  string            `yaml:"prefix"`
	Headers map[string]string `yaml:"headers"`
}

// HeaderRules is an ordered rule list with an explicit fallback.
// The first rule whose prefix matches wins; its headers are layered over
// Default. URLs matching no rule get Default alone.
type HeaderRules struct {
	Rules   []HeaderRule
	Default map[string]string
}

// For returns the headers to send for url. The result is never nil and is
// safe for the caller to modify.
func (h HeaderRules) For(url string) map[string]string {
	out := make(map[string]string, len(h.Default)+2)
	for k, v := range h.Default {
		out[k] = v
	}
	if rule, ok := h.Match(url); ok {
		for k, v := range rule.Headers {
			out[k] = v
		}
	}
	return out
}

// Match returns the first rule whose prefix matches url.
func (h HeaderRules) Match(url string) (HeaderRule, bool) {
	for _, r := range h.Rules {
		if r.Prefix != "" && strings.HasPrefix(url, r.Prefix) {
			return r, true
		}
	}
	return HeaderRule{}, false
}
