package logging

import (
	"net/url"
	"strings"
)

// SanitizeURL strips userinfo, query and fragment from a preview URL before it
// is logged. Preview hosts often carry API tokens in the query string.
// Local paths and unparsable input are returned unchanged.
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
