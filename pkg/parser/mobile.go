package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"fbposts/pkg/post"
)

// MobileHTML parses the lightweight mobile listing markup, where every story
// is an <article> (or a top-level div carrying data-ft tracking JSON) and
// the next page is behind a "see more" link.
type MobileHTML struct{}

const (
	permalinkSelector = `a[href*="story.php"], a[href*="story_fbid="], a[href*="/posts/"], a[href*="permalink.php"]`
	seeMoreSelector   = `div[id^="see_more"] a, a[href*="cursor="], a[href*="sectionLoadingID"]`
)

func (MobileHTML) Name() string {
	return "mobile_html"
}

func (MobileHTML) Match(doc *Document) bool {
	if doc.HTML == nil {
		return false
	}
	return storyContainers(doc.HTML).Length() > 0 || doc.HTML.Find(seeMoreSelector).Length() > 0
}

func (MobileHTML) Parse(doc *Document) (Page, error) {
	var page Page

	storyContainers(doc.HTML).Each(func(_ int, s *goquery.Selection) {
		page.Candidates = append(page.Candidates, candidateFromStory(s, doc.URL))
	})

	if href, ok := doc.HTML.Find(seeMoreSelector).First().Attr("href"); ok {
		page.Next = post.Cursor(absoluteURL(doc.URL, href))
	}

	return page, nil
}

// storyContainers returns top-level stories only; shared posts nested in a
// story are treated as its attachment.
func storyContainers(doc *goquery.Document) *goquery.Selection {
	if articles := doc.Find("article"); articles.Length() > 0 {
		return articles.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.ParentsFiltered("article").Length() == 0
		})
	}
	return doc.Find("div[data-ft]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("[data-ft]").Length() == 0 && strings.Contains(s.AttrOr("data-ft", ""), "post_id")
	})
}

type dataFT struct {
	TopLevelPostID string
	MFStoryKey     string
	OwnerID        string
	PageID         string
}

// parseDataFT reads ids from the tracking blob. Blobs are often malformed;
// whatever can be read is kept.
func parseDataFT(raw string) dataFT {
	if raw == "" {
		return dataFT{}
	}
	ft := gjson.Parse(raw)
	return dataFT{
		TopLevelPostID: jsonText(ft.Get("top_level_post_id")),
		MFStoryKey:     jsonText(ft.Get("mf_story_key")),
		OwnerID:        jsonText(ft.Get("content_owner_id_new")),
		PageID:         jsonText(ft.Get("page_id")),
	}
}

func candidateFromStory(s *goquery.Selection, pageURL string) post.Candidate {
	ft := parseDataFT(s.AttrOr("data-ft", ""))
	ownStory := s.Clone()
	ownStory.Find("article, div[data-ft]").Remove()

	var c post.Candidate

	permalink := ""
	if href, ok := ownStory.Find(permalinkSelector).First().Attr("href"); ok {
		permalink = absoluteURL(pageURL, href)
	}
	c.URL = permalink

	c.PostID = ft.TopLevelPostID
	if c.PostID == "" {
		c.PostID = ft.MFStoryKey
	}
	if c.PostID == "" && permalink != "" {
		c.PostID = postIDFromURL(permalink)
	}

	c.Message = storyMessage(ownStory)
	c.Author = storyAuthor(ownStory, pageURL, ft)

	if abbr := ownStory.Find("abbr").First(); abbr.Length() > 0 {
		if utime, ok := abbr.Attr("data-utime"); ok {
			c.Timestamp = strings.TrimSpace(utime)
		} else if text := strings.TrimSpace(abbr.Text()); text != "" {
			c.Timestamp = text
		}
	}

	c.ReactionsCount = linkCounter(ownStory, `a[href*="reaction/profile"], a[href*="ufi/reaction"], [aria-label*="reaction"]`, "")
	c.CommentsCount = linkCounter(ownStory, "a", "comment")

	c.Image = storyImage(ownStory, pageURL)
	c.Video = storyVideo(ownStory, pageURL)
	c.AttachedPostURL = storyAttachment(s, pageURL, c.PostID)

	return c
}

func storyMessage(s *goquery.Selection) string {
	var parts []string
	s.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		if text := strings.TrimSpace(s.Find(`[data-ad-preview="message"]`).First().Text()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func storyAuthor(s *goquery.Selection, pageURL string, ft dataFT) post.Author {
	anchor := s.Find("header a, h3 a, strong a").First()

	author := post.Author{
		Name: strings.TrimSpace(anchor.Text()),
		ID:   ft.OwnerID,
	}
	if author.ID == "" {
		author.ID = ft.PageID
	}

	if href, ok := anchor.Attr("href"); ok {
		author.URL = profileURL(absoluteURL(pageURL, href))
		if author.ID == "" {
			if u, err := url.Parse(author.URL); err == nil {
				author.ID = u.Query().Get("id")
			}
		}
	}
	return author
}

// profileURL drops tracking parameters, keeping ?id= for numeric profiles.
func profileURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	id := u.Query().Get("id")
	u.RawQuery = ""
	u.Fragment = ""
	if id != "" {
		u.RawQuery = "id=" + url.QueryEscape(id)
	}
	return u.String()
}

// counterText matches "12", "1,234", "1 234", "1.2K" or "3 M". The
// suffix must end a word, so "3 more" reads as 3.
var counterText = regexp.MustCompile(`(?i)\d(?:[\d.,]|\s\d)*(?:\s?[kmb]\b)?`)

// linkCounter returns the first counter-looking text among elements matching
// selector whose text contains keyword.
func linkCounter(s *goquery.Selection, selector, keyword string) string {
	found := ""
	s.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Text())
		if text == "" {
			text = el.AttrOr("aria-label", "")
		}
		if keyword != "" && !strings.Contains(strings.ToLower(text), keyword) {
			return true
		}
		if m := counterText.FindString(text); m != "" {
			found = strings.TrimSpace(m)
			return false
		}
		if keyword != "" {
			// "Comment" link with no number.
			found = text
			return false
		}
		return true
	})
	return found
}

func storyImage(s *goquery.Selection, pageURL string) post.Media {
	img := s.Find("img").FilterFunction(func(_ int, el *goquery.Selection) bool {
		if el.ParentsFiltered("header, h3").Length() > 0 {
			return false
		}
		class := el.AttrOr("class", "")
		return !strings.Contains(class, "profpic") && !strings.Contains(class, "emoji")
	}).First()

	src, ok := img.Attr("src")
	if !ok {
		return post.Media{}
	}
	width, _ := strconv.Atoi(img.AttrOr("width", ""))
	height, _ := strconv.Atoi(img.AttrOr("height", ""))
	return post.Media{URL: absoluteURL(pageURL, src), Width: width, Height: height}
}

func storyVideo(s *goquery.Selection, pageURL string) post.Media {
	if video := s.Find("video").First(); video.Length() > 0 {
		src := video.AttrOr("src", "")
		if src == "" {
			src = video.Find("source").First().AttrOr("src", "")
		}
		if src != "" {
			width, _ := strconv.Atoi(video.AttrOr("width", ""))
			height, _ := strconv.Atoi(video.AttrOr("height", ""))
			return post.Media{URL: absoluteURL(pageURL, src), Width: width, Height: height}
		}
	}

	if href, ok := s.Find(`a[href*="/video_redirect/"]`).First().Attr("href"); ok {
		target := absoluteURL(pageURL, href)
		if u, err := url.Parse(target); err == nil {
			if src := u.Query().Get("src"); src != "" {
				return post.Media{URL: src}
			}
		}
		return post.Media{URL: target}
	}
	return post.Media{}
}

// storyAttachment prefers a nested shared story, then any link to a
// different post.
func storyAttachment(s *goquery.Selection, pageURL, ownID string) string {
	if nested := s.Find("article, div[data-ft]").First(); nested.Length() > 0 {
		if href, ok := nested.Find(permalinkSelector).First().Attr("href"); ok {
			return absoluteURL(pageURL, href)
		}
	}

	attached := ""
	s.Find(permalinkSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := absoluteURL(pageURL, a.AttrOr("href", ""))
		if id := postIDFromURL(href); id != "" && id != ownID {
			attached = href
			return false
		}
		return true
	})
	return attached
}
