package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripMarkdownFence(t *testing.T) {
	got := stripMarkdownFence("```sql\n#\n# SELECT 1;\n#\n### End.\n```")
	if got != "#\n# SELECT 1;\n#\n### End." {
		t.Fatalf("stripMarkdownFence() = %q", got)
	}
}

func TestCompletionTextPrependsPrompt(t *testing.T) {
	prompt := "### Question:\n#\n# q\n#\n### SQL:\n"
	got := completionText(prompt, "#\n# SELECT 1\n#\n### End.")
	if sql, ok := ExtractSQL(got); !ok || sql != "SELECT 1" {
		t.Fatalf("ExtractSQL() = %q, %v", sql, ok)
	}

	echoed := "### SQL:\n#\n# SELECT 2\n#\n### End."
	if got := completionText(prompt, echoed); got != echoed {
		t.Fatalf("completionText() = %q", got)
	}
}

func TestOpenAIPredictorSendsPromptAsUserMessage(t *testing.T) {
	var payload struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"#\n# SELECT 3\n#\n### End."}}]}`))
	}))
	defer server.Close()

	p, err := NewOpenAIPredictor(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAIPredictor() error = %v", err)
	}
	result, err := p.Predict(context.Background(), "prompt\n### SQL:\n")
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if payload.Model != "m" || len(payload.Messages) != 2 || payload.Messages[1].Content != "prompt\n### SQL:\n" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if sql, ok := ExtractSQL(result); !ok || sql != "SELECT 3" {
		t.Fatalf("ExtractSQL() = %q, %v", sql, ok)
	}
}

func TestNewOpenAIPredictorValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIPredictor(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected base URL error")
	}
	if _, err := NewOpenAIPredictor(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatalf("expected api key error")
	}
	p, err := NewOpenAIPredictor(OpenAIConfig{BaseURL: "http://x", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIPredictor() error = %v", err)
	}
	if p.Model() == "" {
		t.Fatalf("expected default model")
	}
}
