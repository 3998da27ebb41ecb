// Package llm abstracts the language-model backends used for plan
// generation. One Provider per backing service, selected at
// configuration time.
package llm

import "context"

// Provider is the interface all LLM providers must implement
type Provider interface {
	ID() string
	Name() string

	// Complete sends a single-turn request and returns the text reply
	Complete(ctx context.Context, req *Request) (string, error)
}

// Request represents a completion request to the LLM
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// Registry holds all available providers
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	r.providers[p.ID()] = p
}

func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

func (r *Registry) List() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}
