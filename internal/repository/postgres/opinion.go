package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carlosvictorodrigues/ratio/internal/repository"
)

// OpinionRepository implements repository.OpinionRepository over PostgreSQL.
type OpinionRepository struct {
	db *Pool
}

// NewOpinionRepository creates a new opinion repository.
func NewOpinionRepository(db *Pool) *OpinionRepository {
	return &OpinionRepository{db: db}
}

// GetOpinion fetches the stored full text of one document.
func (r *OpinionRepository) GetOpinion(ctx context.Context, sourceID, docID string) (*repository.Opinion, error) {
	query := `
		SELECT source_id, doc_id, texto_integral, COALESCE(inteiro_teor_url, ''), updated_at
		FROM opinions
		WHERE source_id = $1 AND doc_id = $2
	`

	var op repository.Opinion
	err := r.db.pool.QueryRow(ctx, query, sourceID, docID).Scan(
		&op.SourceID,
		&op.DocID,
		&op.FullText,
		&op.InteiroTeorURL,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get opinion %s/%s: %w", sourceID, docID, err)
	}

	return &op, nil
}

// Ensure OpinionRepository implements the interface.
var _ repository.OpinionRepository = (*OpinionRepository)(nil)
