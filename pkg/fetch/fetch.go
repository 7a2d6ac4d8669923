// Package fetch defines the fetch capability consumed by the extraction
// pipeline and an HTTP implementation of it.
package fetch

import (
	"context"

	"fbposts/pkg/pool"
	"fbposts/pkg/post"
)

// Ref addresses one page of a target.
type Ref struct {
	Target string
	Cursor post.Cursor
}

// Payload is the raw body of a fetched page.
type Payload struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Func performs a single fetch attempt.
type Func func(ctx context.Context, ref Ref, id pool.Identity) (Payload, error)

type Fetcher interface {
	Fetch(ctx context.Context, ref Ref, id pool.Identity) (Payload, error)
}
