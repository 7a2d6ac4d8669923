// Package normalizer validates candidate posts and coerces them into
// canonical records.
package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"fbposts/pkg/post"
)

// UnknownAuthor stands in for an author whose name the page did not expose.
const UnknownAuthor = "Unknown"

var errMissingAuthor = errors.New("missing author name, id and url")

// Warning is a non-fatal quality issue found while normalizing a record.
type Warning struct {
	Field  string
	Value  string
	Reason string
}

func (w Warning) String() string {
	if w.Value == "" {
		return fmt.Sprintf("%s: %s", w.Field, w.Reason)
	}
	return fmt.Sprintf("%s: %s (%q)", w.Field, w.Reason, w.Value)
}

// Normalize promotes a candidate to a canonical record. A candidate
// without post id, url or any author identity fails with
// post.ErrInvalidRecord; every other defect is repaired and reported as a
// warning.
func Normalize(c post.Candidate) (post.Record, []Warning, error) {
	var warnings []Warning

	rec := post.Record{
		PostID:  strings.TrimSpace(c.PostID),
		URL:     strings.TrimSpace(c.URL),
		Message: strings.TrimSpace(c.Message),
	}
	if rec.PostID == "" {
		return post.Record{}, nil, fmt.Errorf("%w: missing post_id (url %q)", post.ErrInvalidRecord, rec.URL)
	}
	if rec.URL == "" {
		return post.Record{}, nil, fmt.Errorf("%w: post %s: missing url", post.ErrInvalidRecord, rec.PostID)
	}

	author, lowConfidence, err := normalizeAuthor(c.Author)
	if err != nil {
		return post.Record{}, nil, fmt.Errorf("%w: post %s: %v", post.ErrInvalidRecord, rec.PostID, err)
	}
	rec.Author = author
	if lowConfidence {
		warnings = append(warnings, Warning{Field: "author.name", Reason: "missing, low confidence"})
	}

	ts, err := ParseTimestamp(c.Timestamp)
	if err != nil {
		warnings = append(warnings, Warning{Field: "timestamp", Value: fmt.Sprint(c.Timestamp), Reason: "unparseable, set to null"})
	}
	rec.Timestamp = ts

	var w *Warning
	rec.CommentsCount, w = normalizeCount("comments_count", c.CommentsCount)
	if w != nil {
		warnings = append(warnings, *w)
	}
	rec.ReactionsCount, w = normalizeCount("reactions_count", c.ReactionsCount)
	if w != nil {
		warnings = append(warnings, *w)
	}

	rec.Image = normalizeMedia(c.Image)
	rec.Video = normalizeMedia(c.Video)
	rec.AttachedPostURL = post.Attachment{URL: strings.TrimSpace(c.AttachedPostURL)}

	return rec, warnings, nil
}

func normalizeAuthor(a post.Author) (post.Author, bool, error) {
	author := post.Author{
		ID:   strings.TrimSpace(a.ID),
		Name: strings.TrimSpace(a.Name),
		URL:  strings.TrimSpace(a.URL),
	}
	if author.Name != "" {
		return author, false, nil
	}
	if author.ID == "" && author.URL == "" {
		return post.Author{}, false, errMissingAuthor
	}
	author.Name = UnknownAuthor
	return author, true, nil
}

func normalizeCount(field, raw string) (int, *Warning) {
	n, err := ParseCount(raw)
	if err != nil {
		return 0, &Warning{Field: field, Value: raw, Reason: err.Error() + ", set to 0"}
	}
	return n, nil
}

func normalizeMedia(m post.Media) post.Media {
	m.URL = strings.TrimSpace(m.URL)
	if m.URL == "" {
		return post.Media{}
	}
	if m.Width < 0 {
		m.Width = 0
	}
	if m.Height < 0 {
		m.Height = 0
	}
	if m.DurationSeconds < 0 {
		m.DurationSeconds = 0
	}
	return m
}
