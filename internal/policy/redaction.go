// Package policy holds outbound-data hygiene rules for text that leaves
// the process, such as classifier requests to a model backend.
package policy

import "regexp"

type rule struct {
	pattern *regexp.Regexp
	mask    string
}

// Card redaction runs before phone so digit runs that are card numbers
// are not half-matched as phone numbers.
var rules = []rule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.mask)
	}
	return out, out != input
}
