package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

// PassageRepository persists the chunked corpus. Embeddings live in the vector
// store only; this table is the source of truth for sparse index rebuilds.
type PassageRepository struct {
	db *sql.DB
}

func NewPassageRepository(db *sql.DB) *PassageRepository {
	return &PassageRepository{db: db}
}

// ReplaceForSource swaps all passages of one source document in a single
// transaction, so a re-processed document never leaves stale chunks behind.
func (r *PassageRepository) ReplaceForSource(ctx context.Context, source string, passages []domain.Passage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE source = $1`, source); err != nil {
		return fmt.Errorf("delete stale passages: %w", err)
	}

	const insert = `
INSERT INTO passages (id, source, page, category, chunk_index, token_count, content)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	for i := range passages {
		p := &passages[i]
		if _, err := tx.ExecContext(ctx, insert,
			p.ID, p.Source, p.Page, p.Category, p.ChunkIndex, p.TokenCount, p.Content,
		); err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

// ListAll returns the full corpus in stable (source, page, chunk) order. The
// sparse index depends on this ordering for deterministic tie-breaks.
func (r *PassageRepository) ListAll(ctx context.Context) ([]domain.Passage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, source, page, category, chunk_index, token_count, content
FROM passages
ORDER BY source, page, chunk_index
`)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		var p domain.Passage
		if err := rows.Scan(&p.ID, &p.Source, &p.Page, &p.Category, &p.ChunkIndex, &p.TokenCount, &p.Content); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}

func (r *PassageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return count, nil
}
