// Package repository defines read-side access to the long-form
// opinion texts. Vector payloads carry truncated passages; the full
// inteiro teor lives in PostgreSQL and is fetched only for the
// documents that survive reranking.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Opinion is one stored decision text.
type Opinion struct {
	SourceID       string
	DocID          string
	FullText       string
	InteiroTeorURL string
	UpdatedAt      time.Time
}

// OpinionRepository provides read access to stored opinion texts.
type OpinionRepository interface {
	// GetOpinion fetches the full text of one document. Returns
	// ErrNotFound when the document has no stored long-form text.
	GetOpinion(ctx context.Context, sourceID, docID string) (*Opinion, error)
}
