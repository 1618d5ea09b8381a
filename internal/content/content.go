package content

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// SanitizeBody strips unsafe HTML from a message body and trims
// surrounding whitespace. Bodies are stored as sanitized plain text.
func SanitizeBody(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}

// SanitizeName cleans a user-chosen group name the same way.
func SanitizeName(input string) string {
	return strings.TrimSpace(policy.Sanitize(input))
}
