package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"fbposts/pkg/post"
)

// GraphJSON parses JSON feed payloads. Post lists are looked up under the
// paths the various feed endpoints use; fields are matched by alias.
type GraphJSON struct{}

func (GraphJSON) Name() string {
	return "graph_json"
}

func (GraphJSON) Match(doc *Document) bool {
	if doc.JSON == nil {
		return false
	}
	_, ok := postList(*doc.JSON)
	return ok
}

func (GraphJSON) Parse(doc *Document) (Page, error) {
	root := *doc.JSON
	items, _ := postList(root)

	page := Page{Next: graphCursor(root)}
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		if node := item.Get("node"); node.IsObject() {
			item = node
		}
		page.Candidates = append(page.Candidates, candidateFromJSON(item, doc.URL))
	}
	return page, nil
}

var postListPaths = []string{
	"data.posts",
	"data.feed.edges",
	"data.timeline.edges",
	"data.node.timeline_feed_units.edges",
	"feed.data",
	"posts.data",
	"posts",
	"edges",
	"data",
}

// postList finds the post array. ok is true when a list container exists,
// even an empty one, so an empty page is told apart from a foreign payload.
func postList(root gjson.Result) ([]gjson.Result, bool) {
	if root.IsArray() {
		return root.Array(), true
	}
	for _, path := range postListPaths {
		if list := root.Get(path); list.IsArray() {
			return list.Array(), true
		}
	}
	return nil, false
}

var cursorContainers = []string{
	"",
	"data",
	"data.feed",
	"data.timeline",
	"data.node.timeline_feed_units",
	"feed",
	"posts",
}

var cursorPaths = []string{"paging.cursors.after", "paging.next", "next_cursor"}

// graphCursor reads the next-page cursor. A page_info with has_next_page
// false is terminal regardless of end_cursor.
func graphCursor(root gjson.Result) post.Cursor {
	for _, base := range cursorContainers {
		container := root
		if base != "" {
			container = root.Get(base)
		}
		if !container.IsObject() {
			continue
		}

		if info := container.Get("page_info"); info.IsObject() {
			if info.Get("has_next_page").Type == gjson.False {
				return ""
			}
			if c := jsonText(info.Get("end_cursor")); c != "" {
				return post.Cursor(c)
			}
		}
		for _, path := range cursorPaths {
			if c := jsonText(container.Get(path)); c != "" {
				return post.Cursor(c)
			}
		}
	}
	return ""
}

func candidateFromJSON(obj gjson.Result, pageURL string) post.Candidate {
	c := post.Candidate{
		PostID:         firstText(obj, "post_id", "id", "story_fbid", "top_level_post_id"),
		URL:            firstText(obj, "url", "permalink_url", "permalink", "link"),
		Message:        firstText(obj, "message", "text", "body.text"),
		Timestamp:      timestampValue(firstValue(obj, "timestamp", "created_time", "publish_time", "creation_time")),
		CommentsCount:  counterValue(firstValue(obj, "comments_count", "comment_count", "comments")),
		ReactionsCount: counterValue(firstValue(obj, "reactions_count", "reaction_count", "reactions", "likes")),
		Author:         authorFromJSON(obj),
		Image:          mediaFromJSON(firstValue(obj, "image", "full_picture", "picture")),
		Video:          mediaFromJSON(firstValue(obj, "video", "video_url")),
	}

	if c.URL != "" {
		c.URL = absoluteURL(pageURL, c.URL)
	}

	switch attached := firstValue(obj, "attached_post_url", "shared_post", "attached_story"); {
	case attached.Type == gjson.String:
		c.AttachedPostURL = attached.Str
	case attached.IsObject():
		c.AttachedPostURL = firstText(attached, "url", "permalink_url", "link")
	}

	return c
}

func authorFromJSON(obj gjson.Result) post.Author {
	for _, key := range []string{"author", "from", "owner", "actor"} {
		a := obj.Get(key)
		if a.IsObject() {
			return post.Author{
				ID:   jsonText(a.Get("id")),
				Name: jsonText(a.Get("name")),
				URL:  firstText(a, "url", "link", "profile_url"),
			}
		}
		if a.Type == gjson.String {
			if name := jsonText(a); name != "" {
				return post.Author{Name: name}
			}
		}
	}
	return post.Author{
		ID:   firstText(obj, "author_id", "page_id"),
		Name: firstText(obj, "author_name", "page_name"),
		URL:  firstText(obj, "author_url", "page_url"),
	}
}

func mediaFromJSON(m gjson.Result) post.Media {
	switch {
	case m.Type == gjson.String:
		return post.Media{URL: strings.TrimSpace(m.Str)}
	case m.IsObject():
		media := post.Media{
			URL:    firstText(m, "url", "src", "uri", "playable_url"),
			Width:  intValue(m.Get("width")),
			Height: intValue(m.Get("height")),
		}
		if d, ok := numberValue(firstValue(m, "duration", "length", "duration_seconds")); ok {
			media.DurationSeconds = d
		}
		return media
	}
	return post.Media{}
}

var counterPaths = []string{"count", "total_count", "summary.total_count"}

// counterValue renders a counter as raw text for the normalizer. Objects
// such as {"count": 3} or {"summary": {"total_count": 3}} are unwrapped.
func counterValue(v gjson.Result) string {
	if !v.IsObject() {
		return jsonText(v)
	}
	if inner := firstValue(v, counterPaths...); inner.Exists() {
		return counterValue(inner)
	}
	return ""
}

// timestampValue hands the normalizer a string or a json.Number; other
// JSON values pass through and are rejected there.
func timestampValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.String:
		return v.Str
	case gjson.Number:
		return json.Number(v.Raw)
	}
	return v.Value()
}

// firstValue returns the first path holding a non-null value.
func firstValue(obj gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if v := obj.Get(path); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func firstText(obj gjson.Result, paths ...string) string {
	for _, path := range paths {
		if s := jsonText(obj.Get(path)); s != "" {
			return s
		}
	}
	return ""
}

// jsonText renders scalars; objects, arrays and null are empty.
func jsonText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	}
	return ""
}

func numberValue(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}

func intValue(v gjson.Result) int {
	f, ok := numberValue(v)
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}
