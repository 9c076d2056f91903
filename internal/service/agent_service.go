package service

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/agent"
	"github.com/carebridge/carebridge/internal/model"
	appErr "github.com/carebridge/carebridge/internal/pkg/errors"
	"github.com/carebridge/carebridge/internal/trace"
)

const (
	agentClinical = "clinical"
	agentRecords  = "records"
	agentBilling  = "billing"
	agentGeneral  = "general"
)

var specialistPrompts = map[string]string{
	agentClinical: "You are a clinical information specialist. Use document search to ground every medical statement in the patient's records. Never invent clinical facts.",
	agentRecords:  "You are a medical records specialist. Look up patient records by MRN and summarize demographic and care-team details.",
	agentBilling:  "You are a billing specialist. Use the cost estimation tools to answer questions about visit costs and insurance shares.",
	agentGeneral:  "You are a healthcare support assistant. Answer general questions and use any available tool when it helps.",
}

type AgentService struct {
	chatModel     agent.ChatModel
	modelName     string
	fallback      string
	maxIterations int
	memory        *agent.Memory
	tracer        *trace.Logger
	patients      *PatientService
	rag           *RagService
	extraTools    []agent.Tool
}

func NewAgentService(
	chatModel agent.ChatModel,
	modelName string,
	fallback string,
	maxIterations int,
	memory *agent.Memory,
	tracer *trace.Logger,
	patients *PatientService,
	rag *RagService,
	extraTools []agent.Tool,
) *AgentService {
	if fallback == "" {
		fallback = agentGeneral
	}
	return &AgentService{
		chatModel:     chatModel,
		modelName:     modelName,
		fallback:      fallback,
		maxIterations: maxIterations,
		memory:        memory,
		tracer:        tracer,
		patients:      patients,
		rag:           rag,
		extraTools:    extraTools,
	}
}

// buildOrchestrator assembles the specialist set for one user. Tools
// are bound to the user so every lookup runs under their authority.
func (s *AgentService) buildOrchestrator(userID string) (*agent.Orchestrator, error) {
	docSearch := agent.NewDocumentSearchTool(ragSearcher{s.rag}, userID, 0)
	patientLookup := agent.NewPatientLookupTool(s.patients, userID)
	visitCost := agent.NewVisitCostTool()

	billingTools := append([]agent.Tool{visitCost}, s.extraTools...)
	generalTools := append([]agent.Tool{docSearch, patientLookup, visitCost}, s.extraTools...)

	specialists := []*agent.ReactAgent{
		agent.NewReactAgent(agentClinical, s.chatModel, agent.NewRegistry(docSearch),
			specialistPrompts[agentClinical], s.modelName, s.maxIterations),
		agent.NewReactAgent(agentRecords, s.chatModel, agent.NewRegistry(patientLookup),
			specialistPrompts[agentRecords], s.modelName, s.maxIterations),
		agent.NewReactAgent(agentBilling, s.chatModel, agent.NewRegistry(billingTools...),
			specialistPrompts[agentBilling], s.modelName, s.maxIterations),
		agent.NewReactAgent(agentGeneral, s.chatModel, agent.NewRegistry(generalTools...),
			specialistPrompts[agentGeneral], s.modelName, s.maxIterations),
	}
	return agent.NewOrchestrator(s.chatModel, s.modelName, s.fallback, specialists...)
}

// ragSearcher narrows RagService to the tool's interface.
type ragSearcher struct {
	rag *RagService
}

func (r ragSearcher) Search(ctx context.Context, userID, query string, limit int) ([]*model.SearchResult, error) {
	return r.rag.SearchForUser(ctx, userID, query, limit)
}

// Query answers one user message through the multi-agent pipeline.
func (s *AgentService) Query(ctx context.Context, actor *model.User, sessionID, query string) (*agent.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.ErrInvalid
	}
	orchestrator, err := s.buildOrchestrator(actor.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.memory.History(ctx, sessionID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load session history failed",
			zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}

	tr := s.tracer.StartTrace("agent_query", query)
	result, err := orchestrator.Process(ctx, query, history, tr)
	if err != nil {
		tr.Conclude("failed: " + err.Error())
		return nil, err
	}
	tr.AddWorkflowSpan("orchestrate", query, result.Answer, map[string]string{
		"primary_agent": result.Routing.PrimaryAgent,
	}, 0)
	tr.Conclude(result.Answer)

	if sessionID != "" {
		if err := s.memory.Append(ctx, sessionID, openai.ChatMessageRoleUser, query); err != nil {
			logutil.GetLogger(ctx).Warn("append session history failed", zap.Error(err))
		} else if err := s.memory.Append(ctx, sessionID, openai.ChatMessageRoleAssistant, result.Answer); err != nil {
			logutil.GetLogger(ctx).Warn("append session history failed", zap.Error(err))
		}
	}
	return result, nil
}
