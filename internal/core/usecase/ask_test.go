package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
)

type embedderFake struct {
	lastQuery string
	err       error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.lastQuery = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type vectorFake struct {
	hits  []domain.VectorHit
	lastN int
	err   error
}

func (f *vectorFake) Query(_ context.Context, _ []float32, n int) ([]domain.VectorHit, error) {
	f.lastN = n
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type lexicalFake struct {
	mu      sync.Mutex
	scores  map[string]float64
	phrases []string
	calls   int
	err     error
}

func (f *lexicalFake) Score(_ context.Context, chunkID, phrase string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.phrases = append(f.phrases, phrase)
	if f.err != nil {
		return 0, false, f.err
	}
	score, ok := f.scores[chunkID]
	return score, ok, nil
}

func hitsWithScores(vectorScores ...float64) []domain.VectorHit {
	out := make([]domain.VectorHit, 0, len(vectorScores))
	for i, score := range vectorScores {
		out = append(out, domain.VectorHit{
			ID:       "chunk-" + string(rune('a'+i)),
			Content:  "content " + string(rune('a'+i)),
			SourceID: "src-1",
			Title:    "Doc",
			Distance: 1 - score,
		})
	}
	return out
}

func newAskUC(embedder *embedderFake, vector *vectorFake, lexical *lexicalFake, opts AskOptions) *AskUseCase {
	return NewAskUseCase(embedder, vector, lexical, opts)
}

func TestAskEmptyPoolShortCircuits(t *testing.T) {
	vector := &vectorFake{}
	lexical := &lexicalFake{}
	uc := newAskUC(&embedderFake{}, vector, lexical, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "anything", 5, domain.ModeReranked)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("expected nil answer, got %q", *resp.Answer)
	}
	if resp.AbstainReason == nil || *resp.AbstainReason != "No relevant documents found." {
		t.Fatalf("unexpected abstain reason: %v", resp.AbstainReason)
	}
	if len(resp.Contexts) != 0 {
		t.Fatalf("expected empty contexts, got %d", len(resp.Contexts))
	}
	if resp.RerankerUsed {
		t.Fatalf("reranker_used must be false on the empty-pool path")
	}
	if lexical.calls != 0 {
		t.Fatalf("no lexical lookups expected on the empty-pool path, got %d", lexical.calls)
	}
}

func TestAskBaselineKeepsRawScoresAndOrder(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.9, 0.8, 0.7, 0.6, 0.5, 0.4)}
	lexical := &lexicalFake{}
	uc := newAskUC(&embedderFake{}, vector, lexical, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "question", 2, domain.ModeBaseline)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.RerankerUsed {
		t.Fatalf("baseline mode must report reranker_used=false")
	}
	if len(resp.Contexts) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(resp.Contexts))
	}
	if resp.Contexts[0].Score != 0.9 || resp.Contexts[1].Score != 0.8 {
		t.Fatalf("expected raw scores [0.9 0.8], got [%v %v]", resp.Contexts[0].Score, resp.Contexts[1].Score)
	}
	if lexical.calls != 0 {
		t.Fatalf("baseline mode must not hit the lexical index, got %d calls", lexical.calls)
	}
	if resp.Answer == nil || *resp.Answer != resp.Contexts[0].Content {
		t.Fatalf("expected verbatim top content as answer")
	}
}

func TestAskOverFetchesCandidatePool(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.9)}
	uc := newAskUC(&embedderFake{}, vector, &lexicalFake{}, AskOptions{AbstainThreshold: 0.4})

	if _, err := uc.Ask(context.Background(), "q", 0, domain.ModeBaseline); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	// Default k=5 with the default 3x multiplier.
	if vector.lastN != 15 {
		t.Fatalf("expected over-fetch of 15 candidates, got %d", vector.lastN)
	}
}

func TestAskRerankedSendsSanitizedPhrase(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.9, 0.5)}
	lexical := &lexicalFake{scores: map[string]float64{"chunk-a": 4.0}}
	uc := newAskUC(&embedderFake{}, vector, lexical, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), `foo"/bar`, 2, domain.ModeReranked)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !resp.RerankerUsed {
		t.Fatalf("expected reranker_used=true")
	}
	if lexical.calls != 2 {
		t.Fatalf("expected one lexical lookup per candidate, got %d", lexical.calls)
	}
	for _, phrase := range lexical.phrases {
		if phrase != `"foo"" bar"` {
			t.Fatalf("expected sanitized phrase %q, got %q", `"foo"" bar"`, phrase)
		}
	}
}

func TestAskRerankedFusionTieKeepsIndexOrder(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.9, 0.1)}
	lexical := &lexicalFake{scores: map[string]float64{"chunk-a": 2, "chunk-b": 8}}
	uc := newAskUC(&embedderFake{}, vector, lexical, AskOptions{Alpha: 0.5, AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "q", 2, domain.ModeReranked)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Contexts[0].Score != 0.5 || resp.Contexts[1].Score != 0.5 {
		t.Fatalf("expected 0.5/0.5 tie, got [%v %v]", resp.Contexts[0].Score, resp.Contexts[1].Score)
	}
	if resp.Contexts[0].Content != "content a" {
		t.Fatalf("tie must keep the stronger vector candidate first, got %q", resp.Contexts[0].Content)
	}
}

func TestAskLexicalFailureDegradesToNeutral(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.9, 0.5)}
	lexical := &lexicalFake{err: errors.New("fts offline")}
	uc := newAskUC(&embedderFake{}, vector, lexical, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "q", 2, domain.ModeReranked)
	if err != nil {
		t.Fatalf("lexical failure must not abort the request, got %v", err)
	}
	// With every lexical score absent the blend degenerates to the vector
	// component: normalized [1.0, 0.0] halved by alpha.
	if resp.Contexts[0].Score != 0.5 || resp.Contexts[1].Score != 0 {
		t.Fatalf("expected degraded scores [0.5 0], got [%v %v]", resp.Contexts[0].Score, resp.Contexts[1].Score)
	}
}

func TestAskThresholdIsInclusive(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.4)}
	uc := newAskUC(&embedderFake{}, vector, &lexicalFake{}, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "q", 1, domain.ModeBaseline)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer == nil {
		t.Fatalf("score exactly at the threshold must be accepted")
	}
	if resp.AbstainReason != nil {
		t.Fatalf("answer and abstain_reason must be mutually exclusive")
	}
}

func TestAskBelowThresholdAbstainsWithObservableReason(t *testing.T) {
	vector := &vectorFake{hits: hitsWithScores(0.23)}
	uc := newAskUC(&embedderFake{}, vector, &lexicalFake{}, AskOptions{AbstainThreshold: 0.4})

	resp, err := uc.Ask(context.Background(), "q", 1, domain.ModeBaseline)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("expected abstention, got answer %q", *resp.Answer)
	}
	if resp.AbstainReason == nil {
		t.Fatalf("expected abstain reason")
	}
	if !strings.Contains(*resp.AbstainReason, "0.23") || !strings.Contains(*resp.AbstainReason, "0.4") {
		t.Fatalf("reason must embed score and threshold, got %q", *resp.AbstainReason)
	}
	if len(resp.Contexts) != 1 {
		t.Fatalf("contexts must still be returned on abstention, got %d", len(resp.Contexts))
	}
}

func TestAskRejectsUnknownMode(t *testing.T) {
	uc := newAskUC(&embedderFake{}, &vectorFake{}, &lexicalFake{}, AskOptions{})

	_, err := uc.Ask(context.Background(), "q", 1, domain.Mode("fancy"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAskEncoderFailureIsServiceError(t *testing.T) {
	uc := newAskUC(&embedderFake{err: errors.New("encoder down")}, &vectorFake{}, &lexicalFake{}, AskOptions{})

	_, err := uc.Ask(context.Background(), "q", 1, domain.ModeReranked)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("encoder failure must surface as ErrUnavailable, got %v", err)
	}
}

func TestAskVectorIndexFailureIsServiceError(t *testing.T) {
	uc := newAskUC(&embedderFake{}, &vectorFake{err: errors.New("index down")}, &lexicalFake{}, AskOptions{})

	_, err := uc.Ask(context.Background(), "q", 1, domain.ModeBaseline)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("vector index failure must surface as ErrUnavailable, got %v", err)
	}
}

func TestAskDeterministicAcrossRuns(t *testing.T) {
	newUC := func() *AskUseCase {
		vector := &vectorFake{hits: hitsWithScores(0.9, 0.7, 0.7, 0.3)}
		lexical := &lexicalFake{scores: map[string]float64{"chunk-b": 3, "chunk-c": 3}}
		return newAskUC(&embedderFake{}, vector, lexical, AskOptions{AbstainThreshold: 0.4})
	}

	first, err := newUC().Ask(context.Background(), "q", 4, domain.ModeReranked)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	for run := 0; run < 5; run++ {
		next, err := newUC().Ask(context.Background(), "q", 4, domain.ModeReranked)
		if err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
		if len(next.Contexts) != len(first.Contexts) {
			t.Fatalf("run %d: context count changed", run)
		}
		for i := range next.Contexts {
			if next.Contexts[i] != first.Contexts[i] {
				t.Fatalf("run %d: ordering or scores changed at position %d", run, i)
			}
		}
	}
}
