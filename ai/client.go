package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"conclave/domain"
	"conclave/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to any OpenAI-compatible chat completion endpoint. Each
// participant may override the base URL and credentials, so one Client
// serves a whole roster of differently-hosted models.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(log *slog.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate renders the projected history into a chat completion call and
// returns the model's text. Cancellation propagates through ctx; a cancelled
// call returns ctx.Err() and the caller discards any partial result.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	payload := completionRequest{
		Model:       req.Participant.Model,
		Messages:    c.render(req),
		Temperature: req.Participant.Temperature,
	}

	raw, err := c.post(ctx, req.Participant, "/chat/completions", payload)
	if err != nil {
		return Response{}, err
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("provider returned no choices")
	}

	resp := Response{Content: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		resp.Usage = &domain.TokenUsage{
			Prompt:     parsed.Usage.PromptTokens,
			Completion: parsed.Usage.CompletionTokens,
			Total:      parsed.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// Summarize folds a batch of messages into the running summary using the
// same participant-agnostic endpoint. The summarizer participant is expected
// to be configured on the session owner side.
func (c *Client) Summarize(ctx context.Context, p domain.Participant, prior string, batch []domain.Message, roster []domain.Participant) (string, error) {
	names := make(map[string]string, len(roster))
	for _, member := range roster {
		names[member.ID] = member.Name
	}

	var b strings.Builder
	b.WriteString("Fold the following conversation excerpt into the running summary. Keep it short and factual.\n")
	if prior != "" {
		b.WriteString("Current summary:\n" + prior + "\n")
	}
	b.WriteString("New messages:\n")
	for _, msg := range batch {
		name := names[msg.SenderID]
		if name == "" {
			name = msg.SenderID
		}
		fmt.Fprintf(&b, "%s: %s\n", name, msg.Content)
	}

	payload := completionRequest{
		Model: p.Model,
		Messages: []wireMessage{
			{Role: "user", Content: b.String()},
		},
	}
	raw, err := c.post(ctx, p, "/chat/completions", payload)
	if err != nil {
		return "", err
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode summary: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, p domain.Participant, path string, payload any) ([]byte, error) {
	base := p.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errors.StatusError{Status: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	return raw, nil
}

// render flattens the projected history into provider roles. The viewer's
// own messages become "assistant" turns so the model recognizes itself.
func (c *Client) render(req Request) []wireMessage {
	messages := make([]wireMessage, 0, len(req.History)+2)

	if req.Memory != "" {
		messages = append(messages, wireMessage{
			Role:    "system",
			Content: "Earlier conversation, summarized:\n" + req.Memory,
		})
	}

	for _, msg := range req.History {
		role := "user"
		if msg.SenderID == req.Participant.ID {
			role = "assistant"
		}
		content := msg.Content
		if tag, ok := req.Alliances[msg.SenderID]; ok && tag != "" {
			content = fmt.Sprintf("[%s|%s] %s", msg.SenderID, tag, content)
		} else if msg.SenderID != req.Participant.ID {
			content = fmt.Sprintf("[%s] %s", msg.SenderID, content)
		}
		messages = append(messages, wireMessage{Role: role, Content: content})
	}
	return messages
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
