package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/repo"
	"github.com/carebridge/carebridge/internal/service"
)

// EmbeddingSweepJob re-embeds documents whose content is newer than
// their chunks, including documents whose first embedding pass failed.
type EmbeddingSweepJob struct {
	documents  *service.DocumentService
	embeddings *repo.EmbeddingRepo
	batchSize  int
}

func NewEmbeddingSweepJob(documents *service.DocumentService, embeddings *repo.EmbeddingRepo, batchSize int) *EmbeddingSweepJob {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &EmbeddingSweepJob{documents: documents, embeddings: embeddings, batchSize: batchSize}
}

func (j *EmbeddingSweepJob) Name() string {
	return "embedding_sweep"
}

func (j *EmbeddingSweepJob) Run(ctx context.Context) error {
	if j.documents == nil || j.embeddings == nil {
		return nil
	}
	ids, err := j.embeddings.ListStaleDocumentIDs(ctx, j.batchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	failed := 0
	for _, id := range ids {
		if err := j.documents.RegenerateByID(ctx, id); err != nil {
			failed++
			logutil.GetLogger(ctx).Warn("regenerate embeddings failed",
				zap.String("document_id", id), zap.Error(err))
		}
	}
	logutil.GetLogger(ctx).Info("embedding sweep done",
		zap.Int("total", len(ids)), zap.Int("failed", failed))
	return nil
}
