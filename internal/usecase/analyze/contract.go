package analyze

import (
	"context"

	"github.com/mirae-cloud/newsrag/internal/domain"
)

// Chat is the language-model contract used for query decomposition.
type Chat interface {
	// Complete returns the model's text for a prompt, given prior turns.
	Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error)
}
