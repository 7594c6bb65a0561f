package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/rss-digest/app/cfg"
	"golang.org/x/time/rate"
)

const systemPrompt = "You help a developer stay up to date. Return compact JSON with: summary (string), keyPoints (string[]), sentiment (string)."

var ErrNotConfigured = errors.New("AI API key is not configured")

// RequestError reports a non-success answer from the completions endpoint.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("AI request failed: %d", e.StatusCode)
}

// Input is the article handed to the model.
type Input struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Result is the parsed model answer. Parsing never fails: anything that is
// not the expected JSON object ends up verbatim in Summary.
type Result struct {
	Summary   string
	KeyPoints []string
	Sentiment *string
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(c cfg.AI, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.RateLimit)), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		apiKey:     c.APIKey,
		model:      c.Model,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []chatMessage  `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Summarize(ctx context.Context, input Input) (Result, error) {
	if c.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	userContent, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode input: %w", err)
	}

	payload := chatRequest{
		Model:          c.model,
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userContent)},
		},
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(blob))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("AI request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return ParseResult(messageContent(body)), nil
}

func messageContent(body []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil || parsed.Choices[0].Message.Content == nil {
		return ""
	}
	return *parsed.Choices[0].Message.Content
}

// ParseResult interprets the model output, falling back to the raw content
// for any field that is missing or mistyped.
func ParseResult(content string) Result {
	result := Result{Summary: content, KeyPoints: []string{}}

	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil || fields == nil {
		return result
	}

	if summary, ok := fields["summary"].(string); ok {
		result.Summary = summary
	}

	if points, ok := fields["keyPoints"].([]any); ok {
		for _, p := range points {
			if s, ok := p.(string); ok {
				result.KeyPoints = append(result.KeyPoints, s)
			}
		}
	}

	if sentiment, ok := fields["sentiment"].(string); ok {
		result.Sentiment = &sentiment
	}

	return result
}
