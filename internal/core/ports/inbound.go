package ports

import (
	"context"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for answering questions over the
// indexed corpus.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, k int, mode domain.Mode) (*domain.AnswerResponse, error)
}
