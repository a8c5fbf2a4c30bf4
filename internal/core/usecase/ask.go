package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
	"github.com/vmaslov/safety-docs-qa/internal/core/ports"
)

const noCandidatesReason = "No relevant documents found."

type AskOptions struct {
	// Alpha weighs the normalized vector score in the fused ranking;
	// 1-Alpha goes to the normalized lexical score. Zero or out-of-range
	// falls back to 0.5.
	Alpha float64
	// AbstainThreshold is compared inclusively against the top ranked
	// score. Note the scale caveat: in baseline mode the score is the raw
	// vector similarity, in reranked mode it is the normalized blend in
	// [0,1], so the same constant means different things per mode.
	AbstainThreshold    float64
	DefaultK            int
	CandidateMultiplier int
	LexicalConcurrency  int
	LexicalTimeout      time.Duration
}

func (o AskOptions) normalize() AskOptions {
	out := o
	if out.Alpha <= 0 || out.Alpha > 1 {
		out.Alpha = 0.5
	}
	if out.DefaultK <= 0 {
		out.DefaultK = 5
	}
	if out.CandidateMultiplier <= 0 {
		out.CandidateMultiplier = 3
	}
	if out.LexicalConcurrency <= 0 {
		out.LexicalConcurrency = 8
	}
	if out.LexicalTimeout <= 0 {
		out.LexicalTimeout = 2 * time.Second
	}
	return out
}

// AskUseCase runs the full pipeline for one question: encode, over-fetch
// candidates from the vector index, optionally re-rank with per-candidate
// lexical scores, then decide whether the top result is trustworthy enough
// to answer with. All state is request-scoped; the injected indexes are the
// only shared resources and are read-only here.
type AskUseCase struct {
	embedder ports.Embedder
	vector   ports.VectorIndex
	lexical  ports.LexicalIndex
	opts     AskOptions
}

func NewAskUseCase(
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	opts AskOptions,
) *AskUseCase {
	return &AskUseCase{
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		opts:     opts.normalize(),
	}
}

func (uc *AskUseCase) Ask(
	ctx context.Context,
	question string,
	k int,
	mode domain.Mode,
) (*domain.AnswerResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}
	if mode != domain.ModeBaseline && mode != domain.ModeReranked {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("unknown mode %q", mode))
	}
	if k <= 0 {
		k = uc.opts.DefaultK
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "embed query", err)
	}

	hits, err := uc.vector.Query(ctx, queryVector, k*uc.opts.CandidateMultiplier)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "vector query", err)
	}

	if len(hits) == 0 {
		reason := noCandidatesReason
		return &domain.AnswerResponse{
			AbstainReason: &reason,
			Contexts:      []domain.Context{},
			RerankerUsed:  false,
		}, nil
	}

	// Index order is preserved so that stable-sort ties later resolve to
	// the vector index's own ranking. The 1-distance conversion assumes
	// the index reports a bounded dissimilarity measure.
	cands := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		cands = append(cands, domain.Candidate{
			ID:          hit.ID,
			Content:     hit.Content,
			SourceID:    hit.SourceID,
			Title:       hit.Title,
			VectorScore: 1 - hit.Distance,
		})
	}

	rerankerUsed := mode == domain.ModeReranked

	var ranked []domain.Candidate
	if rerankerUsed {
		uc.fetchLexicalScores(ctx, sanitizeLexicalPhrase(question), cands)
		ranked = fuseAndRank(cands, uc.opts.Alpha, k)
	} else {
		ranked = rankBaseline(cands, k)
	}

	contexts := make([]domain.Context, 0, len(ranked))
	for _, cand := range ranked {
		contexts = append(contexts, domain.Context{
			SourceID: cand.SourceID,
			Title:    cand.Title,
			Content:  cand.Content,
			Score:    cand.FinalScore,
		})
	}

	response := &domain.AnswerResponse{
		Contexts:     contexts,
		RerankerUsed: rerankerUsed,
	}

	top := contexts[0]
	if top.Score >= uc.opts.AbstainThreshold {
		answer := top.Content
		response.Answer = &answer
	} else {
		reason := fmt.Sprintf(
			"Top result score (%.2f) is below the threshold of %s.",
			top.Score,
			strconv.FormatFloat(uc.opts.AbstainThreshold, 'g', -1, 64),
		)
		response.AbstainReason = &reason
	}
	return response, nil
}

// fetchLexicalScores runs the per-candidate point lookups concurrently with
// a bounded limit and joins before returning. Each goroutine writes only its
// own slice element. A failed or timed-out lookup degrades to an absent
// score instead of aborting the request.
func (uc *AskUseCase) fetchLexicalScores(ctx context.Context, phrase string, cands []domain.Candidate) {
	g := new(errgroup.Group)
	g.SetLimit(uc.opts.LexicalConcurrency)

	for i := range cands {
		i := i
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(ctx, uc.opts.LexicalTimeout)
			defer cancel()

			score, ok, err := uc.lexical.Score(lookupCtx, cands[i].ID, phrase)
			if err != nil {
				slog.Warn("lexical_lookup_degraded", "chunk_id", cands[i].ID, "error", err)
				return nil
			}
			if ok {
				cands[i].LexicalScore = &score
			}
			return nil
		})
	}
	_ = g.Wait()
}
