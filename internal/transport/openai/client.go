package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Client talks to an OpenAI-compatible API for everything the pipeline
// delegates to a model: query decomposition, query embeddings, answer
// generation and answer verification.
type Client struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
}

// Config holds the model API settings.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
}

// NewClient creates an OpenAI-compatible model client.
func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
	}
}

// Embed implements retrieval.Embedder for query vectorization.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseAPIError("embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

// Complete implements analyze.Chat: one prompt, prior turns as context.
func (c *Client) Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error) {
	messages := historyMessages(history)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", parseAPIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return resp.Choices[0].Message.Content, nil
}

const generationSystem = `You are a news assistant. Answer the user's question in the
user's language using the provided context passages. Cite passages by their
bracketed labels, e.g. [1]. If the context is empty, answer from general
knowledge and say that no current sources were found.`

const strictSystem = `You are a news assistant. Answer ONLY from the provided context
passages and cite every claim by its bracketed label, e.g. [1]. If the
context does not answer the question, say so explicitly. Do not add facts
that are not in the context.`

// Generate implements pipeline.Generator. strict tightens the grounding
// instruction for the post-verification retry.
func (c *Client) Generate(ctx context.Context, query string, history []domain.Turn, bundle domain.ContextBundle, strict bool) (string, error) {
	system := generationSystem
	if strict {
		system = strictSystem
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	messages = append(messages, historyMessages(history)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: generationPrompt(query, bundle),
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", parseAPIError("generation", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty generation response")
	}
	return resp.Choices[0].Message.Content, nil
}

const verificationPrompt = `Check whether the answer below is supported by the context
passages. Reply with exactly GROUNDED if every factual claim in the answer
is backed by the context, otherwise reply with exactly UNGROUNDED.`

// Verify implements pipeline.Verifier: a single-token grounding check.
func (c *Client) Verify(ctx context.Context, answer string, bundle domain.ContextBundle) (bool, error) {
	var b strings.Builder
	b.WriteString(verificationPrompt)
	b.WriteString("\n\nContext:\n")
	writePassages(&b, bundle)
	b.WriteString("\nAnswer:\n")
	b.WriteString(answer)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return false, parseAPIError("verification", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("empty verification response")
	}

	verdict := strings.TrimSpace(strings.ToUpper(resp.Choices[0].Message.Content))
	return strings.HasPrefix(verdict, "GROUNDED"), nil
}

func generationPrompt(query string, bundle domain.ContextBundle) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	writePassages(&b, bundle)
	b.WriteString("\nSources:\n")
	for _, s := range bundle.Sources {
		b.WriteString(s.Label)
		b.WriteString(" ")
		b.WriteString(s.Title)
		if s.Link != "" {
			b.WriteString(" (")
			b.WriteString(s.Link)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

func writePassages(b *strings.Builder, bundle domain.ContextBundle) {
	if bundle.Empty() {
		b.WriteString("(no passages)\n")
		return
	}
	for _, p := range bundle.Passages {
		b.WriteString(p.Label)
		b.WriteString(" ")
		b.WriteString(p.Excerpt)
		b.WriteString("\n")
	}
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(op string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s API error %d: %s", op, reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s", op, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%s request failed: %w", op, err)
}

func historyMessages(history []domain.Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		})
	}
	return messages
}
