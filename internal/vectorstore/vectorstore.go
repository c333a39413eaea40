// Package vectorstore provides interfaces and implementations for vector
// similarity search over the jurisprudence corpus.
package vectorstore

import (
	"context"
	"time"
)

// SearchMode selects which vector leg a search runs against.
type SearchMode int

const (
	// ModeDense searches the named dense vector with the query embedding.
	ModeDense SearchMode = iota

	// ModeLexical searches the named sparse vector with a client-side
	// encoded term-frequency vector of the query text.
	ModeLexical
)

// Source identifies one searchable corpus collection.
type Source struct {
	// ID is the stable source identifier (e.g. "stf", "stj").
	ID string

	// Label is the human-readable source name.
	Label string

	// Kind classifies the source (e.g. "tribunal", "editorial").
	Kind string

	// Collection is the backing collection name.
	Collection string
}

// Filter restricts a search to matching payloads. Zero-value fields
// are ignored.
type Filter struct {
	Courts             []string
	Types              []string
	Branches           []string
	Organs             []string
	RapporteurContains string
	DateFrom           time.Time
	DateTo             time.Time
}

// SearchRequest describes one search against one source.
type SearchRequest struct {
	// Vector is the query embedding, required for ModeDense.
	Vector []float32

	// Text is the raw query text, required for ModeLexical.
	Text string

	Mode   SearchMode
	Filter Filter
	Limit  int
}

// Row is one scored hit with the payload fields the pipeline consumes.
type Row struct {
	PointID string
	Score   float32

	DocID          string
	Type           string
	Court          string
	Process        string
	Rapporteur     string
	Organ          string
	Branch         string
	JudgmentDate   time.Time
	SearchText     string
	FullText       string
	SourceID       string
	SourceLabel    string
	SourceKind     string
	MetadataExtra  map[string]string
}

// VectorStore defines read-side access to the corpus collections.
type VectorStore interface {
	// Search runs one search leg against one source and returns scored rows.
	Search(ctx context.Context, source Source, req SearchRequest) ([]Row, error)

	// Close releases the underlying connection.
	Close() error
}
