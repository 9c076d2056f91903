package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/ai"
	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/filestore"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/pkg/timeutil"
	"github.com/carebridge/carebridge/internal/repo"
)

const embedTaskDocument = "RETRIEVAL_DOCUMENT"

type DocumentService struct {
	documents  *repo.DocumentRepo
	patients   *repo.PatientRepo
	embeddings *repo.EmbeddingRepo
	chunker    *ai.Chunker
	embedder   ai.IEmbedder
	policy     authz.Client
	syncer     *authz.Syncer
	store      filestore.Store
}

func NewDocumentService(
	documents *repo.DocumentRepo,
	patients *repo.PatientRepo,
	embeddings *repo.EmbeddingRepo,
	chunker *ai.Chunker,
	embedder ai.IEmbedder,
	policy authz.Client,
	syncer *authz.Syncer,
	store filestore.Store,
) *DocumentService {
	return &DocumentService{
		documents:  documents,
		patients:   patients,
		embeddings: embeddings,
		chunker:    chunker,
		embedder:   embedder,
		policy:     policy,
		syncer:     syncer,
		store:      store,
	}
}

// resourceFor describes a document to the authorization layer. For
// sensitive patient documents it resolves the assigned doctor, who
// retains access when everyone else in the department loses it.
func (s *DocumentService) resourceFor(ctx context.Context, doc *model.Document) authz.Resource {
	res := authz.Resource{
		Department:  doc.Department,
		CreatedByID: doc.CreatedByID,
		IsSensitive: doc.IsSensitive,
	}
	if doc.IsSensitive && doc.PatientID != "" {
		patient, err := s.patients.GetByID(ctx, doc.PatientID)
		if err != nil {
			logutil.GetLogger(ctx).Warn("load document patient failed",
				zap.String("document_id", doc.ID), zap.Error(err))
			return res
		}
		res.AssignedDoctorID = patient.AssignedDoctorID
	}
	return res
}

type CreateDocumentRequest struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
	PatientID    string `json:"patient_id"`
	Department   string `json:"department"`
	IsSensitive  bool   `json:"is_sensitive"`
}

func (s *DocumentService) Create(ctx context.Context, actor *model.User, req *CreateDocumentRequest) (*model.Document, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Content) == "" {
		return nil, appErr.ErrInvalid
	}
	if req.PatientID != "" {
		if _, err := s.patients.GetByID(ctx, req.PatientID); err != nil {
			return nil, fmt.Errorf("patient lookup: %w", err)
		}
	}
	department := strings.TrimSpace(req.Department)
	if department == "" {
		department = actor.Department
	}
	now := timeutil.NowUnix()
	doc := &model.Document{
		ID:           newID(),
		Title:        req.Title,
		Content:      req.Content,
		DocumentType: strings.TrimSpace(req.DocumentType),
		PatientID:    req.PatientID,
		Department:   department,
		CreatedByID:  actor.ID,
		IsSensitive:  req.IsSensitive,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.syncer.SyncDocumentAccess(ctx, doc); err != nil {
		logutil.GetLogger(ctx).Warn("sync document facts failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	// Embedding generation is best effort too; the scheduled sweep
	// retries documents whose embeddings are missing or stale.
	if err := s.generateEmbeddings(ctx, doc); err != nil {
		logutil.GetLogger(ctx).Warn("generate embeddings failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, actor *model.User, documentID string) (*model.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionRead,
		authz.NewValue(authz.TypeDocument, doc.ID), s.resourceFor(ctx, doc)); err != nil {
		return nil, err
	}
	return doc, nil
}

type ListDocumentsRequest struct {
	DocumentType string
	Department   string
	PatientID    string
	Offset       uint
	Limit        uint
}

func (s *DocumentService) List(ctx context.Context, actor *model.User, req *ListDocumentsRequest) ([]*model.Document, error) {
	if req.Limit == 0 || req.Limit > 100 {
		req.Limit = 50
	}
	opts := repo.ListDocumentsOpts{
		DocumentType: req.DocumentType,
		Department:   req.Department,
		PatientID:    req.PatientID,
		Offset:       req.Offset,
		Limit:        req.Limit,
	}
	ids, restricted, err := listAuthorized(ctx, s.policy, actor, authz.ActionRead, authz.TypeDocument)
	if err != nil {
		logutil.GetLogger(ctx).Warn("policy service unavailable, listing by department",
			zap.String("user_id", actor.ID), zap.Error(err))
		if actor.Department == "" {
			return nil, appErr.ErrForbidden
		}
		opts.Department = actor.Department
		docs, err := s.documents.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		// Sensitive documents drop out unless the fallback rules keep
		// them for this actor: owner, assigned doctor, or admin.
		filtered := docs[:0]
		for _, doc := range docs {
			if authz.FallbackAllowed(actor, authz.ActionRead, s.resourceFor(ctx, doc)) {
				filtered = append(filtered, doc)
			}
		}
		return filtered, nil
	}
	if restricted {
		opts.IDs = ids
		if ids == nil {
			opts.IDs = []string{}
		}
	}
	return s.documents.List(ctx, opts)
}

type UpdateDocumentRequest struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	DocumentType *string `json:"document_type"`
	Department   *string `json:"department"`
	IsSensitive  *bool   `json:"is_sensitive"`
}

func (s *DocumentService) Update(ctx context.Context, actor *model.User, documentID string, req *UpdateDocumentRequest) (*model.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionWrite,
		authz.NewValue(authz.TypeDocument, doc.ID), s.resourceFor(ctx, doc)); err != nil {
		return nil, err
	}
	update := map[string]interface{}{
		"mtime": timeutil.NowUnix(),
	}
	contentChanged := false
	accessChanged := false
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, appErr.ErrInvalid
		}
		update["title"] = title
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, appErr.ErrInvalid
		}
		update["content"] = *req.Content
		contentChanged = true
	}
	if req.DocumentType != nil {
		update["document_type"] = strings.TrimSpace(*req.DocumentType)
	}
	if req.Department != nil {
		update["department"] = strings.TrimSpace(*req.Department)
		accessChanged = true
	}
	if req.IsSensitive != nil {
		update["is_sensitive"] = *req.IsSensitive
		accessChanged = true
	}
	if err := s.documents.Update(ctx, documentID, update); err != nil {
		return nil, err
	}
	doc, err = s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if accessChanged {
		if err := s.syncer.SyncDocumentAccess(ctx, doc); err != nil {
			logutil.GetLogger(ctx).Warn("sync document facts failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if contentChanged {
		if err := s.regenerate(ctx, doc); err != nil {
			logutil.GetLogger(ctx).Warn("regenerate embeddings failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, actor *model.User, documentID string) error {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionWrite,
		authz.NewValue(authz.TypeDocument, doc.ID), s.resourceFor(ctx, doc)); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	if err := s.syncer.RemoveDocumentAccess(ctx, documentID); err != nil {
		logger.Warn("remove document facts failed", zap.String("document_id", documentID), zap.Error(err))
	}
	if err := s.syncer.RemoveEmbeddingAccessByDocument(ctx, documentID); err != nil {
		logger.Warn("remove embedding facts failed", zap.String("document_id", documentID), zap.Error(err))
	}
	return nil
}

// Upload stores the raw file and creates a document from its text.
func (s *DocumentService) Upload(ctx context.Context, actor *model.User, filename string, file filestore.ReadSeekCloser, size int64, req *CreateDocumentRequest) (*model.Document, error) {
	if size <= 0 {
		return nil, appErr.ErrInvalid
	}
	data, err := io.ReadAll(io.LimitReader(file, size))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, appErr.ErrInvalid
	}
	key := newID() + keyExt(filename)
	if err := s.store.Save(ctx, key, file, size); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if req.Title == "" {
		req.Title = filename
	}
	req.Content = string(data)
	return s.Create(ctx, actor, req)
}

func keyExt(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	ext := filename[idx:]
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

// RegenerateEmbeddings drops a document's chunks and rebuilds them
// from the current content.
func (s *DocumentService) RegenerateEmbeddings(ctx context.Context, actor *model.User, documentID string) (int, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionWrite,
		authz.NewValue(authz.TypeDocument, doc.ID), s.resourceFor(ctx, doc)); err != nil {
		return 0, err
	}
	if err := s.regenerate(ctx, doc); err != nil {
		return 0, err
	}
	return s.embeddings.CountByDocument(ctx, documentID)
}

func (s *DocumentService) EmbeddingStatus(ctx context.Context, actor *model.User, documentID string) (*model.EmbeddingStatus, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.policy, actor, authz.ActionRead,
		authz.NewValue(authz.TypeDocument, doc.ID), s.resourceFor(ctx, doc)); err != nil {
		return nil, err
	}
	count, err := s.embeddings.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &model.EmbeddingStatus{
		DocumentID:     documentID,
		HasEmbeddings:  count > 0,
		EmbeddingCount: count,
	}, nil
}

// ListEmbeddingStatuses reports chunk counts for every document the
// actor may see, under the same filters as List.
func (s *DocumentService) ListEmbeddingStatuses(ctx context.Context, actor *model.User, req *ListDocumentsRequest) ([]*model.EmbeddingStatus, error) {
	docs, err := s.List(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	counts, err := s.embeddings.CountByDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	statuses := make([]*model.EmbeddingStatus, 0, len(docs))
	for _, doc := range docs {
		count := counts[doc.ID]
		statuses = append(statuses, &model.EmbeddingStatus{
			DocumentID:     doc.ID,
			HasEmbeddings:  count > 0,
			EmbeddingCount: count,
		})
	}
	return statuses, nil
}

// RegenerateByID rebuilds embeddings without an actor check, for the
// scheduled sweep.
func (s *DocumentService) RegenerateByID(ctx context.Context, documentID string) error {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	return s.regenerate(ctx, doc)
}

func (s *DocumentService) regenerate(ctx context.Context, doc *model.Document) error {
	if err := s.embeddings.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete old embeddings: %w", err)
	}
	if err := s.syncer.RemoveEmbeddingAccessByDocument(ctx, doc.ID); err != nil {
		logutil.GetLogger(ctx).Warn("remove embedding facts failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return s.generateEmbeddings(ctx, doc)
}

func (s *DocumentService) generateEmbeddings(ctx context.Context, doc *model.Document) error {
	if s.embedder == nil {
		return ai.ErrUnavailable
	}
	chunks, err := s.chunker.Chunk(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("chunk document: %w", err)
	}
	now := timeutil.NowUnix()
	embeddings := make([]*model.Embedding, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk.Content, embedTaskDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", chunk.Position, err)
		}
		embeddings = append(embeddings, &model.Embedding{
			ID:           newID(),
			DocumentID:   doc.ID,
			ContentChunk: chunk.Content,
			Vector:       vector,
			ChunkIndex:   chunk.Position,
			Ctime:        now,
		})
	}
	if err := s.embeddings.BatchInsert(ctx, embeddings); err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}
	ids := make([]string, 0, len(embeddings))
	for _, emb := range embeddings {
		ids = append(ids, emb.ID)
	}
	if err := s.syncer.SyncEmbeddingAccess(ctx, doc.ID, ids); err != nil {
		logutil.GetLogger(ctx).Warn("sync embedding facts failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	logutil.GetLogger(ctx).Info("embeddings generated",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(embeddings)),
	)
	return nil
}
