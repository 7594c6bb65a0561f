package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lysyi3m/rss-digest/app/cfg"
)

func completion(content string) []byte {
	blob, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return blob
}

func TestSummarizeRequestShape(t *testing.T) {
	var got chatRequest
	var auth, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completion(`{"summary":"Short","keyPoints":["a","b"],"sentiment":"positive"}`))
	}))
	defer server.Close()

	client := NewClient(cfg.AI{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model"}, server.Client())
	result, err := client.Summarize(context.Background(), Input{Title: "T", URL: "https://example.com", Content: "Body"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if path != "/chat/completions" {
		t.Errorf("Expected path /chat/completions, got: %s", path)
	}
	if auth != "Bearer secret" {
		t.Errorf("Expected bearer auth, got: %s", auth)
	}
	if got.Model != "test-model" || got.Temperature != 0.2 || got.ResponseFormat.Type != "json_object" {
		t.Errorf("Unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != systemPrompt {
		t.Fatalf("Unexpected messages: %+v", got.Messages)
	}

	var user Input
	if err := json.Unmarshal([]byte(got.Messages[1].Content), &user); err != nil {
		t.Fatalf("Expected user message to be JSON: %v", err)
	}
	if user.Title != "T" || user.URL != "https://example.com" || user.Content != "Body" {
		t.Errorf("Unexpected user payload: %+v", user)
	}

	if result.Summary != "Short" || len(result.KeyPoints) != 2 || result.Sentiment == nil || *result.Sentiment != "positive" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestSummarizeNotConfigured(t *testing.T) {
	client := NewClient(cfg.AI{BaseURL: "http://127.0.0.1:1", Model: "m"}, nil)
	if _, err := client.Summarize(context.Background(), Input{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got: %v", err)
	}
	if client.Configured() {
		t.Error("Expected client without key to be unconfigured")
	}
}

func TestSummarizeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(cfg.AI{BaseURL: server.URL, APIKey: "k", Model: "m"}, server.Client())
	_, err := client.Summarize(context.Background(), Input{})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got: %v", err)
	}
	if reqErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got: %d", reqErr.StatusCode)
	}
}

func TestParseResult(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		result := ParseResult("just prose")
		if result.Summary != "just prose" || len(result.KeyPoints) != 0 || result.Sentiment != nil {
			t.Errorf("Unexpected result: %+v", result)
		}
	})

	t.Run("json array", func(t *testing.T) {
		result := ParseResult(`["a"]`)
		if result.Summary != `["a"]` {
			t.Errorf("Expected raw content as summary, got: %s", result.Summary)
		}
	})

	t.Run("mixed key points", func(t *testing.T) {
		result := ParseResult(`{"summary":"S","keyPoints":["one",2,null,"three"],"sentiment":5}`)
		if result.Summary != "S" {
			t.Errorf("Expected summary S, got: %s", result.Summary)
		}
		if len(result.KeyPoints) != 2 || result.KeyPoints[0] != "one" || result.KeyPoints[1] != "three" {
			t.Errorf("Expected only string key points, got: %v", result.KeyPoints)
		}
		if result.Sentiment != nil {
			t.Errorf("Expected non-string sentiment to be dropped, got: %v", *result.Sentiment)
		}
	})

	t.Run("missing summary", func(t *testing.T) {
		content := `{"keyPoints":["x"]}`
		result := ParseResult(content)
		if result.Summary != content {
			t.Errorf("Expected raw content as summary, got: %s", result.Summary)
		}
	})
}
