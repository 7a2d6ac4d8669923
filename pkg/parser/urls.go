package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// postIDFromURL reads story_fbid or fbid, falling back to the last numeric
// path segment.
func postIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	query := u.Query()
	for _, key := range []string{"story_fbid", "fbid"} {
		if v := query.Get(key); v != "" {
			return v
		}
	}

	parts := pathParts(u.Path)
	for i := len(parts) - 1; i >= 0; i-- {
		if isDigits(parts[i]) {
			return parts[i]
		}
	}
	return ""
}

// authorURLFromPostURL maps /somepage/posts/123 to /somepage.
func authorURLFromPostURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	parts := pathParts(u.Path)
	if len(parts) == 0 {
		return ""
	}
	if parts[0] == "permalink.php" || parts[0] == "story.php" {
		if id := u.Query().Get("id"); id != "" {
			return u.Scheme + "://" + u.Host + "/profile.php?id=" + id
		}
		return ""
	}
	return u.Scheme + "://" + u.Host + "/" + parts[0]
}

// authorIDFromURL reads ?id=, falling back to a hash of the URL.
func authorIDFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil {
		if id := u.Query().Get("id"); id != "" {
			return id
		}
	}
	return hashURL(raw)
}

func hashURL(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// absoluteURL resolves href against base. Unresolvable hrefs are returned
// unchanged.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

func isPostLink(href string) bool {
	return strings.Contains(href, "story_fbid=") ||
		strings.Contains(href, "/posts/") ||
		strings.Contains(href, "story.php") ||
		strings.Contains(href, "permalink.php")
}

func pathParts(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
