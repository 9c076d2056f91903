package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/ai"
	"github.com/carebridge/carebridge/internal/authz"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/repo"
	"github.com/carebridge/carebridge/internal/trace"
)

const embedTaskQuery = "RETRIEVAL_QUERY"

type RagOptions struct {
	SimilarityThreshold float64
	MaxResults          int
	ContextTokenBudget  int
	ChatModelName       string
}

type RagService struct {
	documents  *repo.DocumentRepo
	embeddings *repo.EmbeddingRepo
	users      *repo.UserRepo
	embedder   ai.IEmbedder
	generator  ai.IGenerator
	policy     authz.Client
	tracer     *trace.Logger
	opts       RagOptions
}

func NewRagService(
	documents *repo.DocumentRepo,
	embeddings *repo.EmbeddingRepo,
	users *repo.UserRepo,
	embedder ai.IEmbedder,
	generator ai.IGenerator,
	policy authz.Client,
	tracer *trace.Logger,
	opts RagOptions,
) *RagService {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.1
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.ContextTokenBudget <= 0 {
		opts.ContextTokenBudget = 6000
	}
	return &RagService{
		documents:  documents,
		embeddings: embeddings,
		users:      users,
		embedder:   embedder,
		generator:  generator,
		policy:     policy,
		tracer:     tracer,
		opts:       opts,
	}
}

// allowedDocumentIDs resolves the similarity-search allowlist. nil
// means unrestricted, an empty slice means nothing is visible.
func (s *RagService) allowedDocumentIDs(ctx context.Context, actor *model.User) ([]string, error) {
	ids, restricted, err := listAuthorized(ctx, s.policy, actor, authz.ActionRead, authz.TypeDocument)
	if err == nil {
		if !restricted {
			return nil, nil
		}
		if ids == nil {
			return []string{}, nil
		}
		return ids, nil
	}
	logutil.GetLogger(ctx).Warn("policy service unavailable, searching own department",
		zap.String("user_id", actor.ID), zap.Error(err))
	if actor.Department == "" {
		return []string{}, nil
	}
	docs, listErr := s.documents.List(ctx, repo.ListDocumentsOpts{Department: actor.Department})
	if listErr != nil {
		return nil, listErr
	}
	// Sensitive documents leave the retrieval pool unless the actor
	// owns them; patient assignments are not resolved here, so the
	// degraded search errs on the narrow side.
	allowed := make([]string, 0, len(docs))
	for _, doc := range docs {
		res := authz.Resource{
			Department:  doc.Department,
			CreatedByID: doc.CreatedByID,
			IsSensitive: doc.IsSensitive,
		}
		if !authz.FallbackAllowed(actor, authz.ActionRead, res) {
			continue
		}
		allowed = append(allowed, doc.ID)
	}
	return allowed, nil
}

// SearchFilters optionally narrows retrieval to one patient's records
// or one department.
type SearchFilters struct {
	PatientID  string `json:"patient_id"`
	Department string `json:"department"`
}

func (f SearchFilters) empty() bool {
	return f.PatientID == "" && f.Department == ""
}

// Search embeds the query and returns the closest authorized chunks.
func (s *RagService) Search(ctx context.Context, actor *model.User, query string, limit int, filters SearchFilters) ([]*model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	if limit <= 0 || limit > s.opts.MaxResults {
		limit = s.opts.MaxResults
	}
	if s.embedder == nil {
		return nil, ai.ErrUnavailable
	}
	allowed, err := s.allowedDocumentIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !filters.empty() {
		matched, err := s.documents.ListIDsByFilter(ctx, filters.PatientID, filters.Department)
		if err != nil {
			return nil, err
		}
		allowed = intersectIDs(allowed, matched)
		if len(allowed) == 0 {
			return nil, nil
		}
	}
	vector, err := s.embedder.Embed(ctx, query, embedTaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.embeddings.Search(ctx, vector, allowed, s.opts.SimilarityThreshold, limit)
}

// intersectIDs combines the authorization allowlist with a filter set.
// A nil allowlist means unrestricted, so the filter set wins.
func intersectIDs(allowed, matched []string) []string {
	if allowed == nil {
		return matched
	}
	set := make(map[string]struct{}, len(matched))
	for _, id := range matched {
		set[id] = struct{}{}
	}
	out := []string{}
	for _, id := range allowed {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// SearchForUser serves the agent's document_search tool, which carries
// a user id instead of a loaded user.
func (s *RagService) SearchForUser(ctx context.Context, userID, query string, limit int) ([]*model.SearchResult, error) {
	actor, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, actor, query, limit, SearchFilters{})
}

type Answer struct {
	Answer  string                `json:"answer"`
	Sources []*model.SearchResult `json:"sources"`
}

// Ask retrieves context and generates a grounded answer. The whole
// exchange is recorded as one trace with retriever and llm spans.
func (s *RagService) Ask(ctx context.Context, actor *model.User, question string, filters SearchFilters) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErr.ErrInvalid
	}
	tr := s.tracer.StartTrace("rag_query", question)

	searchStart := time.Now()
	results, err := s.Search(ctx, actor, question, s.opts.MaxResults, filters)
	if err != nil {
		tr.Conclude("search failed: " + err.Error())
		return nil, err
	}
	chunkIDs := make([]string, 0, len(results))
	for _, res := range results {
		chunkIDs = append(chunkIDs, res.EmbeddingID)
	}
	tr.AddRetrieverSpan("similarity_search", question, chunkIDs, time.Since(searchStart))

	prompt := buildAnswerPrompt(question, results, s.opts.ContextTokenBudget)
	llmStart := time.Now()
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		tr.Conclude("generation failed: " + err.Error())
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	tr.AddLLMSpan("answer", prompt, answer, s.opts.ChatModelName, time.Since(llmStart))
	tr.Conclude(answer)

	return &Answer{Answer: answer, Sources: results}, nil
}

// buildAnswerPrompt packs retrieved chunks into the prompt until the
// token budget runs out. Chunks arrive best first, so truncation drops
// the weakest matches.
func buildAnswerPrompt(question string, results []*model.SearchResult, budget int) string {
	var sb strings.Builder
	sb.WriteString("You are a clinical support assistant. Answer using only the context below. If the context does not contain the answer, say so.\n\nContext:\n")
	used := 0
	for i, res := range results {
		tokens := estimateContextTokens(res.ContentChunk)
		if used+tokens > budget {
			break
		}
		used += tokens
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, res.Title, res.ContentChunk)
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

func estimateContextTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	return count
}
