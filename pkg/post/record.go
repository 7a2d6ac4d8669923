// Package post holds the record types that flow through the extraction
// pipeline and the error taxonomy shared by every stage.
package post

// Cursor is an opaque pagination token. The empty cursor is terminal.
type Cursor string

// IsTerminal reports whether the cursor signals that no further page exists.
func (c Cursor) IsTerminal() bool {
	return c == ""
}

// Author identifies who published a post. ID and URL may be unknown (empty),
// Name is required for a canonical record.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Media describes an image or video attached to a post. The zero value
// marshals to an empty object and means "absent".
type Media struct {
	URL             string  `json:"url,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// IsEmpty reports whether the descriptor carries no locator.
func (m Media) IsEmpty() bool {
	return m.URL == ""
}

// Attachment points at a post shared inside another post. The zero value
// marshals to an empty object.
type Attachment struct {
	URL string `json:"url,omitempty"`
}

// Record is the canonical, validated post emitted to sinks. Field names and
// nesting are the wire contract for exporters.
type Record struct {
	PostID          string     `json:"post_id"`
	URL             string     `json:"url"`
	Message         string     `json:"message"`
	Timestamp       *int64     `json:"timestamp"`
	CommentsCount   int        `json:"comments_count"`
	ReactionsCount  int        `json:"reactions_count"`
	Author          Author     `json:"author"`
	Image           Media      `json:"image"`
	Video           Media      `json:"video"`
	AttachedPostURL Attachment `json:"attached_post_url"`
}

// Candidate is an untrusted, partially populated post produced by a parser
// shape. Counters are kept as the raw text found in the payload and
// Timestamp holds whatever the payload carried (epoch number or date string).
type Candidate struct {
	PostID          string
	URL             string
	Message         string
	Timestamp       any
	CommentsCount   string
	ReactionsCount  string
	Author          Author
	Image           Media
	Video           Media
	AttachedPostURL string
}
