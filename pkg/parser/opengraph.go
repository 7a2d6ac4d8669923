package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"fbposts/pkg/post"
)

// OpenGraph parses a single-post page from its OpenGraph meta tags. It is
// the last resort shape and never yields a next cursor.
type OpenGraph struct{}

func (OpenGraph) Name() string {
	return "opengraph"
}

func (OpenGraph) Match(doc *Document) bool {
	if doc.HTML == nil || hasLoginForm(doc.HTML) {
		return false
	}
	if metaContent(doc.HTML, "og:url") == "" {
		return false
	}
	return metaContent(doc.HTML, "og:description") != "" || metaContent(doc.HTML, "og:title") != ""
}

func (OpenGraph) Parse(doc *Document) (Page, error) {
	page := doc.HTML

	postURL := absoluteURL(doc.URL, metaContent(page, "og:url"))
	if postURL == "" {
		postURL = doc.URL
	}

	message := metaContent(page, "og:description")
	if message == "" {
		message = metaContent(page, "og:title")
	}
	if message == "" {
		message = strings.TrimSpace(page.Find("title").First().Text())
	}

	authorURL := profileLink(page)
	if authorURL == "" {
		authorURL = authorURLFromPostURL(postURL)
	}

	postID := postIDFromURL(postURL)
	if postID == "" {
		postID = hashURL(postURL)
	}

	c := post.Candidate{
		PostID:  postID,
		URL:     postURL,
		Message: message,
		Author: post.Author{
			ID:   authorIDFromURL(authorURL),
			Name: metaContent(page, "og:site_name"),
			URL:  authorURL,
		},
		CommentsCount:  keywordCounter(page, "comments", "comment"),
		ReactionsCount: keywordCounter(page, "likes", "reactions", "reacted"),
		Image: post.Media{
			URL:    metaContent(page, "og:image"),
			Width:  metaInt(page, "og:image:width"),
			Height: metaInt(page, "og:image:height"),
		},
		Video: post.Media{
			URL:             firstNonEmpty(metaContent(page, "og:video:secure_url"), metaContent(page, "og:video")),
			Width:           metaInt(page, "og:video:width"),
			Height:          metaInt(page, "og:video:height"),
			DurationSeconds: float64(metaInt(page, "video:duration")),
		},
		AttachedPostURL: attachedPostLink(page, postURL),
	}

	if ts := metaContent(page, "article:published_time"); ts != "" {
		c.Timestamp = ts
	} else if utime, ok := page.Find("abbr[data-utime]").First().Attr("data-utime"); ok {
		c.Timestamp = strings.TrimSpace(utime)
	}

	return Page{Candidates: []post.Candidate{c}}, nil
}

// metaContent reads <meta property=...> or <meta name=...>.
func metaContent(doc *goquery.Document, prop string) string {
	sel := doc.Find(`meta[property="` + prop + `"]`)
	if sel.Length() == 0 {
		sel = doc.Find(`meta[name="` + prop + `"]`)
	}
	return strings.TrimSpace(sel.First().AttrOr("content", ""))
}

func metaInt(doc *goquery.Document, prop string) int {
	n, err := strconv.Atoi(metaContent(doc, prop))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func profileLink(doc *goquery.Document) string {
	found := ""
	doc.Find(`a[href*="facebook.com"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if strings.Contains(href, "profile.php") || strings.Contains(href, "/pages/") {
			found = href
			return false
		}
		return true
	})
	return found
}

// keywordCounter returns the largest integer within twenty characters of any
// keyword in the page text, as raw text. Empty when none is found.
func keywordCounter(doc *goquery.Document, keywords ...string) string {
	text := strings.ToLower(spacedText(doc.Find("body")))

	best, bestRaw := -1, ""
	for _, kw := range keywords {
		idx := strings.Index(text, kw)
		if idx == -1 {
			continue
		}
		lo, hi := max(0, idx-20), min(len(text), idx+20)
		for _, token := range strings.Fields(text[lo:hi]) {
			clean := strings.ReplaceAll(token, ",", "")
			if !isDigits(clean) || len(clean) > 12 {
				continue
			}
			if v := atoiDigits(clean); v > best {
				best, bestRaw = v, clean
			}
		}
	}
	return bestRaw
}

// spacedText joins the text nodes under sel with single spaces, so that
// adjacent elements such as <span>12</span><span>comments</span> stay apart.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			parts = append(parts, strings.Fields(n.Data)...)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func atoiDigits(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func attachedPostLink(doc *goquery.Document, ownURL string) string {
	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if strings.Contains(href, "facebook.com") && isPostLink(href) && href != ownURL {
			found = href
			return false
		}
		return true
	})
	return found
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
