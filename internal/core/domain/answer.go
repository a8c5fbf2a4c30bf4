package domain

// Context is the public projection of a ranked candidate.
type Context struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// AnswerResponse is the public result of one question. Answer and
// AbstainReason are mutually exclusive: exactly one is non-nil unless
// Contexts is empty, in which case Answer is nil and AbstainReason is set.
type AnswerResponse struct {
	Answer        *string   `json:"answer"`
	AbstainReason *string   `json:"abstain_reason"`
	Contexts      []Context `json:"contexts"`
	RerankerUsed  bool      `json:"reranker_used"`
}
