package domain

import "fmt"

type Mode string

const (
	ModeBaseline Mode = "baseline"
	ModeReranked Mode = "reranked"
)

// ParseMode validates a retrieval mode. An empty string defaults to reranked.
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case "":
		return ModeReranked, nil
	case string(ModeBaseline):
		return ModeBaseline, nil
	case string(ModeReranked):
		return ModeReranked, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse mode", fmt.Errorf("mode must be 'baseline' or 'reranked', got %q", raw))
	}
}

// VectorHit is one nearest-neighbor result as reported by the vector index.
// Distance follows the index convention: lower means more similar.
type VectorHit struct {
	ID       string
	Content  string
	SourceID string
	Title    string
	Distance float64
}

// Candidate is a retrieved passage plus its scores, scoped to one request.
// LexicalScore is nil when the lexical engine reported no match for the
// candidate under the sanitized phrase; the normalized fields stay nil until
// normalization runs over the pool.
type Candidate struct {
	ID           string
	Content      string
	SourceID     string
	Title        string
	VectorScore  float64
	LexicalScore *float64
	NormVector   *float64
	NormLexical  *float64
	FinalScore   float64
}
