package llm

import (
	"fmt"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// NewOllamaProvider creates a provider for a local Ollama server through its
// OpenAI-compatible /v1 endpoint. No API key is needed.
func NewOllamaProvider(config Config) (*OpenAIProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	if config.APIKey == "" {
		config.APIKey = "ollama" // ignored by the server, required by the client
	}
	if config.Timeout == 0 {
		config.Timeout = 60 // local models can be slow
	}
	return newOpenAICompatible("ollama", config, baseURL), nil
}
