package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        server.URL + "/v1",
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
	})
}

func TestClient_Embed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
			"model": "text-embedding-3-small",
		})
	})

	vec, err := c.Embed(context.Background(), "economy news")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(vec))
	}
}

func TestClient_Complete(t *testing.T) {
	var gotMessages []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]any `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotMessages = req.Messages
		json.NewEncoder(w).Encode(chatResponse(`{"intent":"news"}`))
	})

	history := []domain.Turn{{Role: "user", Text: "earlier question"}}
	out, err := c.Complete(context.Background(), "decompose this", history)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"intent":"news"}` {
		t.Errorf("unexpected completion %q", out)
	}
	// history turn plus the prompt itself
	if len(gotMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(gotMessages))
	}
	if gotMessages[0]["content"] != "earlier question" {
		t.Errorf("history must precede the prompt, got %v", gotMessages[0])
	}
}

func TestClient_GenerateStrictChangesSystemPrompt(t *testing.T) {
	var systems []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		systems = append(systems, req.Messages[0].Content)
		json.NewEncoder(w).Encode(chatResponse("the answer [1]"))
	})

	bundle := domain.ContextBundle{
		Passages: []domain.Passage{{DocID: "a", Excerpt: "evidence", Label: "[1]"}},
		Sources:  []domain.SourceRef{{Title: "A", Label: "[1]"}},
	}

	if _, err := c.Generate(context.Background(), "q", nil, bundle, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := c.Generate(context.Background(), "q", nil, bundle, true); err != nil {
		t.Fatalf("Generate strict: %v", err)
	}
	if len(systems) != 2 || systems[0] == systems[1] {
		t.Error("strict generation must use a different system prompt")
	}
	if !strings.Contains(systems[1], "ONLY") {
		t.Errorf("strict system prompt missing grounding restriction: %q", systems[1])
	}
}

func TestClient_Verify(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"GROUNDED", true},
		{"grounded", true},
		{"UNGROUNDED", false},
		{"the answer invents facts", false},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chatResponse(tt.reply))
			})
			got, err := c.Verify(context.Background(), "answer", domain.ContextBundle{
				Passages: []domain.Passage{{Excerpt: "evidence", Label: "[1]"}},
			})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestGenerationPrompt_IncludesLabelsAndSources(t *testing.T) {
	bundle := domain.ContextBundle{
		Passages: []domain.Passage{{Excerpt: "rates held steady", Label: "[1]"}},
		Sources:  []domain.SourceRef{{Title: "Rates decision", Link: "https://news.example/1", Label: "[1]"}},
	}

	prompt := generationPrompt("what happened to rates?", bundle)
	for _, want := range []string{"[1] rates held steady", "[1] Rates decision (https://news.example/1)", "what happened to rates?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
