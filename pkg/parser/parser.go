// Package parser turns one fetched payload into candidate post records and
// the cursor of the next page.
//
// Facebook serves several unrelated markups for the same content, so
// extraction is split into shapes. Each shape recognises one markup and maps
// it field by field, leaving fields it cannot find empty. Shapes are tried
// in registration order and the first one that matches parses the page.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"fbposts/pkg/fetch"
	"fbposts/pkg/post"
)

// Page is the result of parsing one payload.
type Page struct {
	Candidates []post.Candidate
	Next       post.Cursor
	Shape      string
}

// Document is a payload decoded once and shared by every shape. Exactly one
// of JSON and HTML is set.
type Document struct {
	URL  string
	JSON *gjson.Result
	HTML *goquery.Document
}

type Shape interface {
	Name() string
	Match(doc *Document) bool
	Parse(doc *Document) (Page, error)
}

type Parser struct {
	shapes []Shape
}

// New returns a parser over shapes, or over the built-in shapes when none
// are given.
func New(shapes ...Shape) *Parser {
	if len(shapes) == 0 {
		shapes = []Shape{GraphJSON{}, MobileHTML{}, OpenGraph{}}
	}
	return &Parser{shapes: shapes}
}

// Parse extracts candidates in document order. A payload no shape
// recognises yields post.ErrUnrecognizedPayload together with a Page that
// carries only the next cursor, when one can still be read.
func (p *Parser) Parse(payload fetch.Payload) (Page, error) {
	doc, err := Decode(payload)
	if err != nil {
		return Page{}, err
	}

	if doc.HTML != nil && isChallenge(doc.HTML) {
		return Page{}, fmt.Errorf("%w: challenge page at %s", post.ErrUnrecognizedPayload, payload.URL)
	}

	for _, shape := range p.shapes {
		if !shape.Match(doc) {
			continue
		}
		page, err := shape.Parse(doc)
		if err != nil {
			return Page{}, err
		}
		page.Shape = shape.Name()
		return page, nil
	}

	return Page{Next: salvageCursor(doc)}, fmt.Errorf("%w: no shape matched %s", post.ErrUnrecognizedPayload, payload.URL)
}

// salvageCursor reads a next-page link from a page no shape recognised.
func salvageCursor(doc *Document) post.Cursor {
	if doc.JSON != nil {
		return graphCursor(*doc.JSON)
	}
	if href, ok := doc.HTML.Find(seeMoreSelector).First().Attr("href"); ok {
		return post.Cursor(absoluteURL(doc.URL, href))
	}
	return ""
}

// jsonPrefix guards some JSON endpoints against script inclusion.
const jsonPrefix = "for (;;);"

// Decode classifies the payload as JSON or HTML and parses it.
func Decode(payload fetch.Payload) (*Document, error) {
	body := bytes.TrimSpace(payload.Body)
	body = bytes.TrimPrefix(body, []byte(jsonPrefix))
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", post.ErrUnrecognizedPayload)
	}

	doc := &Document{URL: payload.URL}

	if body[0] == '{' || body[0] == '[' {
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("%w: invalid json", post.ErrUnrecognizedPayload)
		}
		root := gjson.ParseBytes(body)
		doc.JSON = &root
		return doc, nil
	}

	html, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", post.ErrUnrecognizedPayload, err)
	}
	doc.HTML = html
	return doc, nil
}

var challengeTitles = []string{
	"security check",
	"you must log in",
	"log in to facebook",
	"you're temporarily blocked",
	"checkpoint",
}

// isChallenge detects interstitials served instead of content: captchas,
// checkpoints and bare login walls.
func isChallenge(doc *goquery.Document) bool {
	if doc.Find(`#captcha, [name="captcha_response"], iframe[src*="recaptcha"], form[action*="checkpoint"]`).Length() > 0 {
		return true
	}

	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, marker := range challengeTitles {
		if strings.Contains(title, marker) {
			return true
		}
	}

	return hasLoginForm(doc) && doc.Find(`article, div[data-ft], meta[property="og:url"]`).Length() == 0
}

func hasLoginForm(doc *goquery.Document) bool {
	return doc.Find(`form[action*="login"] input[name="pass"], input[type="password"]`).Length() > 0
}
