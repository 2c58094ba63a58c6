package extract

import (
	"net/url"
	"regexp"
	"strings"
)

var bulletPrefix = regexp.MustCompile(`^[-•·*]\s*`)

// CleanText collapses whitespace, including newlines, and strips a leading
// bullet marker.
func CleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(bulletPrefix.ReplaceAllString(s, ""))
}

// ResolveURL makes href absolute against baseURL. Protocol-relative URLs are
// upgraded to https. Hrefs with a scheme other than http or https, such as
// mailto: or javascript:, resolve to "".
func ResolveURL(href, baseURL string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return ""
		}
		return href
	}

	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(href, "/") {
		return baseURL + href
	}
	return baseURL + "/" + href
}
