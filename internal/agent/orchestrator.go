package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/trace"
)

// RoutingDecision is the structured verdict of the routing model.
type RoutingDecision struct {
	PrimaryAgent          string   `json:"primary_agent"`
	SecondaryAgents       []string `json:"secondary_agents"`
	RequiresCollaboration bool     `json:"requires_collaboration"`
	ExecutionOrder        []string `json:"execution_order"`
}

// Orchestrator routes each query to one or more specialist agents and
// synthesizes a single answer when several of them contribute.
type Orchestrator struct {
	model       ChatModel
	modelName   string
	specialists map[string]*ReactAgent
	order       []string
	fallback    string
}

func NewOrchestrator(model ChatModel, modelName string, fallback string, specialists ...*ReactAgent) (*Orchestrator, error) {
	if len(specialists) == 0 {
		return nil, fmt.Errorf("at least one specialist agent is required")
	}
	o := &Orchestrator{
		model:       model,
		modelName:   modelName,
		specialists: make(map[string]*ReactAgent, len(specialists)),
		fallback:    fallback,
	}
	for _, specialist := range specialists {
		o.specialists[specialist.Name()] = specialist
		o.order = append(o.order, specialist.Name())
	}
	if _, ok := o.specialists[o.fallback]; !ok {
		o.fallback = o.order[0]
	}
	return o, nil
}

type AgentResponse struct {
	Agent  string `json:"agent"`
	Answer string `json:"answer"`
}

type Result struct {
	Answer    string          `json:"answer"`
	Routing   RoutingDecision `json:"routing"`
	Responses []AgentResponse `json:"responses"`
}

func (o *Orchestrator) routingPrompt(query string) string {
	var sb strings.Builder
	sb.WriteString("You route healthcare support queries to specialist agents.\nAgents:\n")
	for _, name := range o.order {
		sb.WriteString("- " + name + "\n")
	}
	sb.WriteString(`Respond with JSON only, no prose:
{"primary_agent": "...", "secondary_agents": [], "requires_collaboration": false, "execution_order": []}

Query: `)
	sb.WriteString(query)
	return sb.String()
}

// route asks the model for a routing decision. Any malformed reply is
// logged and replaced with the fallback agent; a bad routing answer
// must never surface as a user-facing failure.
func (o *Orchestrator) route(ctx context.Context, query string, tr *trace.Trace) RoutingDecision {
	logger := logutil.GetLogger(ctx)
	fallbackDecision := RoutingDecision{PrimaryAgent: o.fallback}

	start := time.Now()
	reply, err := o.model.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: o.routingPrompt(query)},
	}, nil)
	tr.AddLLMSpan("route", query, reply.Content, o.modelName, time.Since(start))
	if err != nil {
		logger.Warn("routing call failed, using fallback agent",
			zap.String("fallback", o.fallback), zap.Error(err))
		return fallbackDecision
	}

	var decision RoutingDecision
	if err := json.Unmarshal([]byte(stripCodeFence(reply.Content)), &decision); err != nil {
		logger.Warn("routing reply is not valid JSON, using fallback agent",
			zap.String("reply", reply.Content),
			zap.String("fallback", o.fallback),
			zap.Error(err),
		)
		return fallbackDecision
	}
	if _, ok := o.specialists[decision.PrimaryAgent]; !ok {
		logger.Warn("routing picked unknown agent, using fallback agent",
			zap.String("picked", decision.PrimaryAgent),
			zap.String("fallback", o.fallback),
		)
		return fallbackDecision
	}
	return decision
}

func (o *Orchestrator) executionOrder(decision RoutingDecision) []string {
	var order []string
	if decision.RequiresCollaboration && len(decision.ExecutionOrder) > 0 {
		order = decision.ExecutionOrder
	} else {
		order = append([]string{decision.PrimaryAgent}, decision.SecondaryAgents...)
		if !decision.RequiresCollaboration {
			order = order[:1]
		}
	}
	seen := make(map[string]struct{}, len(order))
	var out []string
	for _, name := range order {
		if _, ok := o.specialists[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		out = []string{o.fallback}
	}
	return out
}

// Process answers one query end to end: route, run the chosen agents,
// then synthesize when more than one agent contributed.
func (o *Orchestrator) Process(ctx context.Context, query string, history []openai.ChatCompletionMessage, tr *trace.Trace) (*Result, error) {
	decision := o.route(ctx, query, tr)
	order := o.executionOrder(decision)

	var responses []AgentResponse
	for _, name := range order {
		specialist := o.specialists[name]
		answer, err := specialist.Run(ctx, query, history, tr)
		if err != nil {
			logutil.GetLogger(ctx).Warn("specialist failed",
				zap.String("agent", name), zap.Error(err))
			continue
		}
		responses = append(responses, AgentResponse{Agent: name, Answer: answer})
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("no agent produced an answer")
	}

	result := &Result{Routing: decision, Responses: responses}
	if len(responses) == 1 {
		result.Answer = responses[0].Answer
		return result, nil
	}

	answer, err := o.synthesize(ctx, query, responses, tr)
	if err != nil {
		logutil.GetLogger(ctx).Warn("synthesis failed, returning primary answer", zap.Error(err))
		answer = responses[0].Answer
	}
	result.Answer = answer
	return result, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, query string, responses []AgentResponse, tr *trace.Trace) (string, error) {
	var sb strings.Builder
	sb.WriteString("Combine the specialist answers below into one coherent reply to the user's query. Do not mention the agents.\n\nQuery: ")
	sb.WriteString(query)
	for _, resp := range responses {
		sb.WriteString("\n\n[" + resp.Agent + "]\n" + resp.Answer)
	}
	start := time.Now()
	reply, err := o.model.Chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: sb.String()},
	}, nil)
	tr.AddLLMSpan("synthesize", query, reply.Content, o.modelName, time.Since(start))
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
