package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/pkg/dbutil"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
)

var documentColumns = []string{"id", "title", "content", "document_type", "patient_id", "department", "created_by_id", "is_sensitive", "ctime", "mtime"}

type ListDocumentsOpts struct {
	DocumentType string
	Department   string
	PatientID    string
	IDs          []string
	Offset       uint
	Limit        uint
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func scanDocument(scanner interface{ Scan(...interface{}) error }) (*model.Document, error) {
	var doc model.Document
	var patientID, createdByID sql.NullString
	if err := scanner.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.DocumentType,
		&patientID, &doc.Department, &createdByID, &doc.IsSensitive, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	doc.PatientID = patientID.String
	doc.CreatedByID = createdByID.String
	return &doc, nil
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":            doc.ID,
		"title":         doc.Title,
		"content":       doc.Content,
		"document_type": doc.DocumentType,
		"patient_id":    nullable(doc.PatientID),
		"department":    doc.Department,
		"created_by_id": nullable(doc.CreatedByID),
		"is_sensitive":  doc.IsSensitive,
		"ctime":         doc.Ctime,
		"mtime":         doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, documentID string) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", map[string]interface{}{"id": documentID}, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

func (r *DocumentRepo) List(ctx context.Context, opts ListDocumentsOpts) ([]*model.Document, error) {
	if opts.IDs != nil && len(opts.IDs) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if opts.DocumentType != "" {
		where["document_type"] = opts.DocumentType
	}
	if opts.Department != "" {
		where["department"] = opts.Department
	}
	if opts.PatientID != "" {
		where["patient_id"] = opts.PatientID
	}
	if opts.IDs != nil {
		where["id in"] = opts.IDs
	}
	if opts.Limit > 0 {
		where["_limit"] = []uint{opts.Offset, opts.Limit}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListIDsByFilter returns the ids of documents matching the given
// patient and department filters. Empty filters match everything.
func (r *DocumentRepo) ListIDsByFilter(ctx context.Context, patientID, department string) ([]string, error) {
	where := map[string]interface{}{}
	if patientID != "" {
		where["patient_id"] = patientID
	}
	if department != "" {
		where["department"] = department
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{"id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DocumentRepo) Update(ctx context.Context, documentID string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": documentID}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// Delete removes a document. Its embeddings go with it via ON DELETE CASCADE.
func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, documentID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
