package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yanthraa/chat-memory/internal/config"
	"github.com/yanthraa/chat-memory/internal/model"
	registryextract "github.com/yanthraa/chat-memory/internal/registry/extract"
)

func init() {
	registryextract.Register(registryextract.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryextract.ProfileExtractor, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai extractor: CHAT_MEMORY_OPENAI_API_KEY is required")
	}
	return &OpenAIExtractor{
		apiKey:  cfg.OpenAIAPIKey,
		model:   cfg.OpenAIExtractModel,
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
	}, nil
}

const systemPrompt = `You extract durable facts about a user from a conversation summary.
Respond with a JSON object: {"new_facts": [...], "new_preferences": {...}, "new_topics": [...]}.
Only include items not already present in the known profile. Respond with empty
lists/objects when the summary reveals nothing new.`

// OpenAIExtractor derives profile deltas via the chat completions API.
type OpenAIExtractor struct {
	apiKey  string
	model   string
	baseURL string
}

func (e *OpenAIExtractor) Name() string { return "openai" }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *format       `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type format struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *OpenAIExtractor) Extract(ctx context.Context, summary string, existing model.Profile) (model.ProfileDelta, error) {
	known, err := json.Marshal(existing)
	if err != nil {
		return model.ProfileDelta{}, err
	}
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Known profile:\n%s\n\nConversation summary:\n%s", known, summary)},
		},
		ResponseFormat: &format{Type: "json_object"},
	})
	if err != nil {
		return model.ProfileDelta{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return model.ProfileDelta{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return model.ProfileDelta{}, fmt.Errorf("openai extract request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ProfileDelta{}, fmt.Errorf("openai extract: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return model.ProfileDelta{}, fmt.Errorf("openai extract: parse response: %w", err)
	}
	if result.Error != nil {
		return model.ProfileDelta{}, fmt.Errorf("openai extract error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return model.ProfileDelta{}, fmt.Errorf("openai extract: empty response")
	}

	var delta model.ProfileDelta
	if err := json.Unmarshal([]byte(result.Choices[0].Message.Content), &delta); err != nil {
		return model.ProfileDelta{}, fmt.Errorf("openai extract: parse delta: %w", err)
	}
	return delta, nil
}

var _ registryextract.ProfileExtractor = (*OpenAIExtractor)(nil)
