// Package generator turns natural-language input into executable
// plans via an LLM provider, and revises a running plan when the user
// asks for something new.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joss/taskpilot/internal/logging"
	"github.com/joss/taskpilot/internal/plan"
	"github.com/joss/taskpilot/pkg/llm"
)

const plannerSystemPrompt = "You are the taskpilot planner. Return JSON only, no markdown. " +
	"Break the user's request into an executable task graph. " +
	"Schema: {\"description\":\"...\",\"tasks\":[{\"id\":\"...\",\"description\":\"...\"," +
	"\"kind\":\"read-file|write-file|list-dir|run-command|analyze-code\"," +
	"\"parameters\":{\"key\":\"value\"},\"dependencies\":[\"...\"]}]}. " +
	"Parameter keys per kind: read-file/list-dir/analyze-code take \"path\"; " +
	"write-file takes \"path\" and \"content\"; run-command takes \"command\". " +
	"Rules: task ids must be unique, dependencies must reference earlier ids and form a DAG, " +
	"every task must be concrete and bounded."

// Generator produces and revises plans through one LLM provider.
type Generator struct {
	provider llm.Provider
	model    string
	logger   *logging.Logger
}

// New creates a generator bound to a provider and model.
func New(provider llm.Provider, model string) *Generator {
	return &Generator{
		provider: provider,
		model:    model,
		logger:   logging.New("generator"),
	}
}

type planPayload struct {
	Description string        `json:"description"`
	Tasks       []taskPayload `json:"tasks"`
}

type taskPayload struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	Kind         string            `json:"kind"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
}

// GeneratePlan builds a plan from a prompt and project context. The
// returned plan is validated but not installed anywhere.
func (g *Generator) GeneratePlan(ctx context.Context, prompt, contextSummary string) (*plan.Plan, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	input := map[string]any{"request": prompt}
	if contextSummary != "" {
		input["project_context"] = contextSummary
	}
	return g.complete(ctx, input)
}

// ModifyPlan asks for a replacement plan given the current plan state
// and a new user request. Implements the controller.Generator contract.
func (g *Generator) ModifyPlan(ctx context.Context, current *plan.Plan, request string) (*plan.Plan, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("request is required")
	}

	input := map[string]any{
		"new_request":  request,
		"current_plan": summarize(current),
		"instruction": "Produce a full replacement plan that satisfies both the original plan's " +
			"intent and the new request.",
	}
	return g.complete(ctx, input)
}

func (g *Generator) complete(ctx context.Context, input map[string]any) (*plan.Plan, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal planner payload: %w", err)
	}

	reply, err := g.provider.Complete(ctx, &llm.Request{
		Model:        g.model,
		SystemPrompt: plannerSystemPrompt,
		Prompt:       string(payload),
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("planner request: %w", err)
	}

	p, err := parsePlan(reply)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(p); err != nil {
		return nil, fmt.Errorf("generated plan invalid: %w", err)
	}
	g.logger.WithPlan(p.ID).Info("plan_generated", map[string]interface{}{
		"tasks": len(p.Tasks),
	})
	return p, nil
}

// parsePlan decodes the model reply into a plan, tolerating a JSON
// object wrapped in prose or code fences.
func parsePlan(reply string) (*plan.Plan, error) {
	raw := extractJSON(reply)
	var decoded planPayload
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("parse planner response: %w", err)
	}
	if len(decoded.Tasks) == 0 {
		return nil, fmt.Errorf("planner returned no tasks")
	}

	tasks := make([]plan.Task, 0, len(decoded.Tasks))
	for i, t := range decoded.Tasks {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		if strings.TrimSpace(t.Kind) == "" {
			return nil, fmt.Errorf("task %s: missing kind", id)
		}
		tasks = append(tasks, plan.Task{
			ID:           id,
			Description:  strings.TrimSpace(t.Description),
			Kind:         plan.TaskKind(strings.TrimSpace(t.Kind)),
			Parameters:   t.Parameters,
			Dependencies: t.Dependencies,
			Status:       plan.TaskPending,
		})
	}
	return plan.New(strings.TrimSpace(decoded.Description), tasks), nil
}

// extractJSON pulls the outermost JSON object out of a reply that may
// carry markdown fences or surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// summarize flattens a plan into the compact form sent to the model.
func summarize(p *plan.Plan) map[string]any {
	if p == nil {
		return nil
	}
	tasks := make([]map[string]any, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, map[string]any{
			"id":           t.ID,
			"description":  t.Description,
			"kind":         string(t.Kind),
			"status":       string(t.Status),
			"dependencies": t.Dependencies,
		})
	}
	return map[string]any{
		"description": p.Description,
		"status":      string(p.Status),
		"tasks":       tasks,
	}
}
