// Package llm is a thin wrapper around the external language-model API
// used for structured transcript analysis.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voicescribe/internal/config"
)

const systemPrompt = `You analyze transcribed speech from practice scenarios.
Respond with a single JSON object with keys: "summary" (string),
"key_points" (array of strings), "sentiment" (string) and
"suggestions" (array of strings).`

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func New(cfg config.LLM) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze sends a transcript for structured analysis and returns the
// model's JSON object untouched.
func (c *Client) Analyze(ctx context.Context, transcript, scenario string) (json.RawMessage, error) {
	const op = "clients.llm.Analyze"

	prompt := systemPrompt
	if scenario != "" {
		prompt += "\nScenario context: " + scenario
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: transcript},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, res.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(res.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty completion", op)
	}

	content := []byte(chat.Choices[0].Message.Content)
	if !json.Valid(content) {
		return nil, fmt.Errorf("%s: model returned non-JSON analysis", op)
	}

	return json.RawMessage(content), nil
}
