package policy

import "regexp"

var (
	authPattern   = regexp.MustCompile(`(?i)(authorization"?\s*[:=]\s*"?(?:key|bearer)\s+)[A-Za-z0-9._~+/=\-]{6,}`)
	apiKeyPattern = regexp.MustCompile(`(?i)("?(?:api[_-]?key|token|secret)"?\s*[:=]\s*"?)[^"\s,&}]+`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// RedactSecrets masks credentials and email addresses in upstream payload snippets.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := authPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}
