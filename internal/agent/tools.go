package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carebridge/carebridge/internal/model"
)

// PatientDirectory is the slice of the patient service the lookup tool
// needs. The caller decides whose authority the lookups run under.
type PatientDirectory interface {
	FindByMRN(ctx context.Context, userID, mrn string) (*model.Patient, error)
}

// DocumentSearcher runs an authorization-filtered similarity search.
type DocumentSearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]*model.SearchResult, error)
}

type patientLookupTool struct {
	directory PatientDirectory
	userID    string
}

// NewPatientLookupTool looks up a patient record by medical record
// number on behalf of the given user.
func NewPatientLookupTool(directory PatientDirectory, userID string) Tool {
	return &patientLookupTool{directory: directory, userID: userID}
}

func (t *patientLookupTool) Name() string {
	return "patient_lookup"
}

func (t *patientLookupTool) Description() string {
	return "Look up a patient by medical record number (MRN). Returns name, department and assigned doctor."
}

func (t *patientLookupTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"mrn": map[string]interface{}{
				"type":        "string",
				"description": "the patient's medical record number",
			},
		},
		"required": []string{"mrn"},
	}
}

func (t *patientLookupTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		MRN string `json:"mrn"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if req.MRN == "" {
		return "", fmt.Errorf("mrn is required")
	}
	patient, err := t.directory.FindByMRN(ctx, t.userID, req.MRN)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(patient)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type documentSearchTool struct {
	searcher DocumentSearcher
	userID   string
	limit    int
}

// NewDocumentSearchTool searches clinical documents the given user is
// authorized to read.
func NewDocumentSearchTool(searcher DocumentSearcher, userID string, limit int) Tool {
	if limit <= 0 {
		limit = 5
	}
	return &documentSearchTool{searcher: searcher, userID: userID, limit: limit}
}

func (t *documentSearchTool) Name() string {
	return "document_search"
}

func (t *documentSearchTool) Description() string {
	return "Semantic search over clinical documents the current user may read. Returns matching excerpts."
}

func (t *documentSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "what to search for",
			},
		},
		"required": []string{"query"},
	}
}

func (t *documentSearchTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if req.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	results, err := t.searcher.Search(ctx, t.userID, req.Query, t.limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "no matching documents found", nil
	}
	var sb strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sb, "%d. %s (similarity %.2f)\n%s\n", i+1, res.Title, res.Similarity, res.ContentChunk)
	}
	return sb.String(), nil
}

// visit cost table, flat self-pay rates per visit type
var visitBaseCost = map[string]float64{
	"checkup":      150,
	"consultation": 250,
	"emergency":    850,
	"surgery":      4500,
}

type visitCostTool struct{}

// NewVisitCostTool estimates the out-of-pocket cost of a visit.
func NewVisitCostTool() Tool {
	return &visitCostTool{}
}

func (t *visitCostTool) Name() string {
	return "visit_cost_estimate"
}

func (t *visitCostTool) Description() string {
	return "Estimate the cost of a visit. Visit types: checkup, consultation, emergency, surgery. Insurance coverage is a fraction between 0 and 1."
}

func (t *visitCostTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"visit_type": map[string]interface{}{
				"type":        "string",
				"description": "one of: checkup, consultation, emergency, surgery",
			},
			"insurance_coverage": map[string]interface{}{
				"type":        "number",
				"description": "insured fraction between 0 and 1, 0 if unknown",
			},
		},
		"required": []string{"visit_type"},
	}
}

func (t *visitCostTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		VisitType         string  `json:"visit_type"`
		InsuranceCoverage float64 `json:"insurance_coverage"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	base, ok := visitBaseCost[strings.ToLower(strings.TrimSpace(req.VisitType))]
	if !ok {
		return "", fmt.Errorf("unknown visit type: %s", req.VisitType)
	}
	coverage := req.InsuranceCoverage
	if coverage < 0 || coverage > 1 {
		return "", fmt.Errorf("insurance_coverage must be between 0 and 1")
	}
	out := map[string]float64{
		"base_cost":     base,
		"insured_share": base * coverage,
		"patient_share": base * (1 - coverage),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
