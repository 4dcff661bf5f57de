package extract

import (
	"context"
	"time"

	"distill/internal/llm"
)

// AgentService drives the agent_extract job type: it hands a page's
// markdown plus a prompt/schema to the configured LLM client and
// returns the structured result stored as an Extraction row.
type AgentService struct {
	clientFactory func() (llm.Client, llm.Provider, string, error)
}

// NewAgentService builds an AgentService from a factory that resolves
// the configured provider lazily, mirroring the teacher's
// NewClientFromConfig dispatch.
func NewAgentService(factory func() (llm.Client, llm.Provider, string, error)) *AgentService {
	return &AgentService{clientFactory: factory}
}

// ExtractStructured runs structured extraction over a single page's
// markdown against the given field specs and free-form prompt.
func (s *AgentService) ExtractStructured(ctx context.Context, pageURL, markdown string, fields []llm.FieldSpec, prompt string, timeout time.Duration) (map[string]interface{}, error) {
	client, _, _, err := s.clientFactory()
	if err != nil {
		return nil, err
	}

	res, err := client.ExtractFields(ctx, llm.ExtractRequest{
		URL:      pageURL,
		Markdown: markdown,
		Fields:   fields,
		Prompt:   prompt,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}

	return res.Fields, nil
}
