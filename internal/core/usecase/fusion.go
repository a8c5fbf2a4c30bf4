package usecase

import (
	"sort"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
)

// normalizeScores min-max rescales one score field across the pool into
// [0,1]. Candidates without the field are left untouched. A pool where every
// present value is equal carries no discriminating signal, so every holder
// gets 1.0 rather than a divide-by-zero or a penalty.
func normalizeScores(
	cands []domain.Candidate,
	value func(*domain.Candidate) *float64,
	setNorm func(*domain.Candidate, float64),
) {
	var (
		present  bool
		min, max float64
	)
	for i := range cands {
		v := value(&cands[i])
		if v == nil {
			continue
		}
		if !present {
			min, max = *v, *v
			present = true
			continue
		}
		if *v < min {
			min = *v
		}
		if *v > max {
			max = *v
		}
	}
	if !present {
		return
	}

	for i := range cands {
		v := value(&cands[i])
		if v == nil {
			continue
		}
		if max == min {
			setNorm(&cands[i], 1.0)
			continue
		}
		setNorm(&cands[i], (*v-min)/(max-min))
	}
}

// fuseAndRank normalizes vector and lexical scores independently, blends
// them with weight alpha, and returns the top k. The sort is stable: ties
// keep the vector index's original candidate order.
func fuseAndRank(cands []domain.Candidate, alpha float64, k int) []domain.Candidate {
	normalizeScores(cands,
		func(c *domain.Candidate) *float64 { return &c.VectorScore },
		func(c *domain.Candidate, norm float64) { c.NormVector = &norm },
	)
	normalizeScores(cands,
		func(c *domain.Candidate) *float64 { return c.LexicalScore },
		func(c *domain.Candidate, norm float64) { c.NormLexical = &norm },
	)

	for i := range cands {
		cands[i].FinalScore = alpha*orZero(cands[i].NormVector) + (1-alpha)*orZero(cands[i].NormLexical)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].FinalScore > cands[j].FinalScore
	})
	return truncateCandidates(cands, k)
}

// rankBaseline scores each candidate with its raw vector similarity. The
// pool is re-sorted rather than trusted to arrive ordered from the index.
func rankBaseline(cands []domain.Candidate, k int) []domain.Candidate {
	for i := range cands {
		cands[i].FinalScore = cands[i].VectorScore
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].FinalScore > cands[j].FinalScore
	})
	return truncateCandidates(cands, k)
}

func truncateCandidates(cands []domain.Candidate, k int) []domain.Candidate {
	if k <= 0 || len(cands) <= k {
		return cands
	}
	return cands[:k]
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
