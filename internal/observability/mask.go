package observability

import "regexp"

var (
	reQuotedPassword = regexp.MustCompile(`(?i)(password=)'(?:[^'\\]|\\.)*'`)
	rePassword       = regexp.MustCompile(`(?i)(password=)([^\s;']+)`)
	reURLCredentials = regexp.MustCompile(`(://)([^:/@\s]+):([^@\s]+)(@)`)
	reAPIKey         = regexp.MustCompile(`(?i)(api[_-]?key[=:]\s*|bearer\s+)([A-Za-z0-9._\-]+)`)
)

// Mask hides credentials in DSNs and error strings before they reach a log.
func Mask(s string) string {
	out := reQuotedPassword.ReplaceAllString(s, "${1}***")
	out = rePassword.ReplaceAllString(out, "${1}***")
	out = reURLCredentials.ReplaceAllString(out, "${1}*:*${4}")
	out = reAPIKey.ReplaceAllString(out, "${1}***")
	return out
}
