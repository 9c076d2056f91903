package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/carebridge/carebridge/internal/model"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// BatchInsert writes the chunk embeddings of one document in a single
// multi-row insert.
func (r *EmbeddingRepo) BatchInsert(ctx context.Context, embeddings []*model.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(embeddings))
	args := make([]interface{}, 0, len(embeddings)*6)
	for i, emb := range embeddings {
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, emb.ID, emb.DocumentID, emb.ContentChunk,
			pgvector.NewVector(emb.Vector), emb.ChunkIndex, emb.Ctime)
	}
	query := fmt.Sprintf(`INSERT INTO embeddings (id, document_id, content_chunk, embedding, chunk_index, ctime) VALUES %s`,
		strings.Join(placeholders, ", "))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *EmbeddingRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM embeddings WHERE document_id = $1`
	_, err := r.db.ExecContext(ctx, query, documentID)
	return err
}

// CountByDocuments returns the chunk count per document for the given
// ids. Documents with no embeddings are absent from the result.
func (r *EmbeddingRepo) CountByDocuments(ctx context.Context, documentIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(documentIDs))
	if len(documentIDs) == 0 {
		return counts, nil
	}
	const query = `SELECT document_id, COUNT(*) FROM embeddings WHERE document_id = ANY($1) GROUP BY document_id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(documentIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (r *EmbeddingRepo) CountByDocument(ctx context.Context, documentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM embeddings WHERE document_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, documentID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Search runs cosine similarity over the chunks of the allowed
// documents. A nil allowlist searches everything; an empty one matches
// nothing. Results below the threshold are excluded and the rest come
// back best first.
func (r *EmbeddingRepo) Search(ctx context.Context, queryVec []float32, documentIDs []string, threshold float64, limit int) ([]*model.SearchResult, error) {
	if documentIDs != nil && len(documentIDs) == 0 {
		return nil, nil
	}
	const filteredQuery = `
SELECT e.id, e.document_id, e.content_chunk, e.chunk_index,
       d.title, d.document_type, d.department, d.is_sensitive,
       1 - (e.embedding <=> $1) AS similarity
FROM embeddings e
JOIN documents d ON e.document_id = d.id
WHERE e.document_id = ANY($2)
  AND 1 - (e.embedding <=> $1) > $3
ORDER BY similarity DESC
LIMIT $4`
	const unfilteredQuery = `
SELECT e.id, e.document_id, e.content_chunk, e.chunk_index,
       d.title, d.document_type, d.department, d.is_sensitive,
       1 - (e.embedding <=> $1) AS similarity
FROM embeddings e
JOIN documents d ON e.document_id = d.id
WHERE 1 - (e.embedding <=> $1) > $2
ORDER BY similarity DESC
LIMIT $3`
	var rows *sql.Rows
	var err error
	if documentIDs == nil {
		rows, err = r.db.QueryContext(ctx, unfilteredQuery, pgvector.NewVector(queryVec), threshold, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, filteredQuery, pgvector.NewVector(queryVec), pq.Array(documentIDs), threshold, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var results []*model.SearchResult
	for rows.Next() {
		var res model.SearchResult
		if err := rows.Scan(&res.EmbeddingID, &res.DocumentID, &res.ContentChunk, &res.ChunkIndex,
			&res.Title, &res.DocumentType, &res.Department, &res.IsSensitive, &res.Similarity); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// ListStaleDocumentIDs finds documents whose content changed after their
// embeddings were generated, or that have no embeddings at all.
func (r *EmbeddingRepo) ListStaleDocumentIDs(ctx context.Context, limit int) ([]string, error) {
	const query = `
SELECT d.id
FROM documents d
LEFT JOIN (
    SELECT document_id, MAX(ctime) AS ctime
    FROM embeddings
    GROUP BY document_id
) e ON d.id = e.document_id
WHERE e.document_id IS NULL OR d.mtime > e.ctime
ORDER BY d.mtime
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
