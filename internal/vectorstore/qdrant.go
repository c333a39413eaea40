package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

const (
	// Vector field names for hybrid collections
	denseVectorName  = "dense"
	sparseVectorName = "sparse"

	judgmentDateLayout = "2006-01-02"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Search runs one dense or lexical leg against a source collection.
func (s *QdrantStore) Search(ctx context.Context, source Source, req SearchRequest) ([]Row, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: source.Collection,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(req.Filter),
	}

	switch req.Mode {
	case ModeDense:
		if len(req.Vector) == 0 {
			return nil, fmt.Errorf("dense search requires a query vector")
		}
		query.Query = qdrant.NewQueryDense(req.Vector)
		query.Using = qdrant.PtrOf(denseVectorName)
	case ModeLexical:
		sparse := EncodeSparseQuery(req.Text)
		if len(sparse.Indices) == 0 {
			return nil, nil
		}
		query.Query = qdrant.NewQuerySparse(sparse.Indices, sparse.Values)
		query.Using = qdrant.PtrOf(sparseVectorName)
	default:
		return nil, fmt.Errorf("unknown search mode %d", req.Mode)
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", source.Collection, err)
	}

	rows := make([]Row, 0, len(response))
	for _, point := range response {
		rows = append(rows, rowFromPoint(source, point))
	}

	return rows, nil
}

// buildFilter translates a Filter into qdrant must-conditions.
// Judgment dates are stored both as a display string and as a unix
// timestamp (data_julgamento_ts) used for range filtering.
func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition

	if len(f.Courts) > 0 {
		must = append(must, qdrant.NewMatchKeywords("tribunal", f.Courts...))
	}
	if len(f.Types) > 0 {
		must = append(must, qdrant.NewMatchKeywords("tipo", f.Types...))
	}
	if len(f.Branches) > 0 {
		must = append(must, qdrant.NewMatchKeywords("ramo_direito", f.Branches...))
	}
	if len(f.Organs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("orgao_julgador", f.Organs...))
	}
	if f.RapporteurContains != "" {
		must = append(must, qdrant.NewMatchText("relator", f.RapporteurContains))
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		dateRange := &qdrant.Range{}
		if !f.DateFrom.IsZero() {
			dateRange.Gte = qdrant.PtrOf(float64(f.DateFrom.Unix()))
		}
		if !f.DateTo.IsZero() {
			dateRange.Lte = qdrant.PtrOf(float64(f.DateTo.Unix()))
		}
		must = append(must, qdrant.NewRange("data_julgamento_ts", dateRange))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func rowFromPoint(source Source, point *qdrant.ScoredPoint) Row {
	row := Row{
		PointID:     point.Id.GetUuid(),
		Score:       point.Score,
		SourceID:    source.ID,
		SourceLabel: source.Label,
		SourceKind:  source.Kind,
	}

	payload := point.Payload
	if payload == nil {
		return row
	}

	known := map[string]*string{
		"doc_id":         &row.DocID,
		"tipo":           &row.Type,
		"tribunal":       &row.Court,
		"processo":       &row.Process,
		"relator":        &row.Rapporteur,
		"orgao_julgador": &row.Organ,
		"ramo_direito":   &row.Branch,
		"texto_busca":    &row.SearchText,
		"texto_integral": &row.FullText,
	}
	for key, dst := range known {
		if v, ok := payload[key]; ok {
			*dst = v.GetStringValue()
		}
	}

	if v, ok := payload["data_julgamento"]; ok {
		if ts, err := time.Parse(judgmentDateLayout, v.GetStringValue()); err == nil {
			row.JudgmentDate = ts
		}
	}

	for key, v := range payload {
		if _, ok := known[key]; ok {
			continue
		}
		if key == "data_julgamento" || key == "data_julgamento_ts" {
			continue
		}
		if s := v.GetStringValue(); s != "" {
			if row.MetadataExtra == nil {
				row.MetadataExtra = make(map[string]string)
			}
			row.MetadataExtra[key] = s
		}
	}

	return row
}

// Ensure QdrantStore implements VectorStore interface.
var _ VectorStore = (*QdrantStore)(nil)
