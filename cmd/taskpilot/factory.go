package main

import (
	"fmt"

	"github.com/joss/taskpilot/internal/config"
	"github.com/joss/taskpilot/pkg/llm"
)

// buildRegistry wires up all known LLM providers.
func buildRegistry(env *config.Settings) *llm.Registry {
	reg := llm.NewRegistry()
	reg.Register(llm.NewAnthropic(env.AnthropicKey, env.AnthropicBaseURL))
	reg.Register(llm.NewOpenAI(env.OpenAIKey, env.OpenAIBaseURL))
	return reg
}

// selectProvider resolves the configured provider from the registry.
func selectProvider(env *config.Settings) (llm.Provider, error) {
	p, ok := buildRegistry(env).Get(env.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (set TASKPILOT_PROVIDER)", env.Provider)
	}
	return p, nil
}
