package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
)

type answererFake struct {
	resp  *domain.AnswerResponse
	err   error
	calls int

	gotQuestion string
	gotK        int
	gotMode     domain.Mode
}

func (f *answererFake) Ask(_ context.Context, question string, k int, mode domain.Mode) (*domain.AnswerResponse, error) {
	f.calls++
	f.gotQuestion = question
	f.gotK = k
	f.gotMode = mode
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestHandler(fake *answererFake, cfg RouterConfig) http.Handler {
	return NewRouter(fake, nil, cfg).Handler()
}

func postAsk(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskEndpointReturnsAnswer(t *testing.T) {
	answer := "Wear cut-resistant gloves."
	fake := &answererFake{
		resp: &domain.AnswerResponse{
			Answer: &answer,
			Contexts: []domain.Context{
				{SourceID: "ppe-policy", Title: "PPE Policy", Content: "Wear cut-resistant gloves.", Score: 0.91},
			},
			RerankerUsed: true,
		},
	}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "what gloves are required?", "k": 3, "mode": "reranked"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp domain.AnswerResponse
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer == nil || *resp.Answer != answer {
		t.Fatalf("unexpected answer: %+v", resp.Answer)
	}
	if resp.AbstainReason != nil {
		t.Fatalf("expected no abstain reason, got %q", *resp.AbstainReason)
	}
	if fake.gotQuestion != "what gloves are required?" || fake.gotK != 3 || fake.gotMode != domain.ModeReranked {
		t.Fatalf("unexpected call: q=%q k=%d mode=%q", fake.gotQuestion, fake.gotK, fake.gotMode)
	}
}

func TestAskEndpointRequiresQuestion(t *testing.T) {
	fake := &answererFake{}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "   "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank question, got %d", res.Code)
	}
	if fake.calls != 0 {
		t.Fatalf("use case should not run for blank question, got %d calls", fake.calls)
	}
}

func TestAskEndpointRejectsUnknownModeBeforeRetrieval(t *testing.T) {
	fake := &answererFake{}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "forklift rules", "mode": "hybrid"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", res.Code)
	}
	if fake.calls != 0 {
		t.Fatalf("retrieval pipeline must not run for unknown mode, got %d calls", fake.calls)
	}

	var resp map[string]string
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if !strings.Contains(resp["error"], "baseline") || !strings.Contains(resp["error"], "reranked") {
		t.Fatalf("error should name the valid modes, got %q", resp["error"])
	}
}

func TestAskEndpointDefaultsModeToReranked(t *testing.T) {
	answer := "ok"
	fake := &answererFake{resp: &domain.AnswerResponse{Answer: &answer, RerankerUsed: true}}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "forklift rules"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.gotMode != domain.ModeReranked {
		t.Fatalf("omitted mode should default to reranked, got %q", fake.gotMode)
	}
}

func TestAskEndpointRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(&answererFake{}, RouterConfig{})

	res := postAsk(t, handler, `{"q": `)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}
}

func TestAskEndpointRejectsNonPost(t *testing.T) {
	handler := newTestHandler(&answererFake{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/ask", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestAskEndpointMapsUnavailableTo503(t *testing.T) {
	fake := &answererFake{
		err: domain.WrapError(domain.ErrUnavailable, "embed query", fmt.Errorf("connection refused")),
	}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "forklift rules"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when a dependency is down, got %d", res.Code)
	}
}

func TestAskEndpointReturnsAbstention(t *testing.T) {
	reason := "Top result score (0.23) is below the threshold of 0.4."
	fake := &answererFake{
		resp: &domain.AnswerResponse{
			AbstainReason: &reason,
			Contexts: []domain.Context{
				{SourceID: "ppe-policy", Title: "PPE Policy", Content: "irrelevant", Score: 0.23},
			},
			RerankerUsed: true,
		},
	}
	handler := newTestHandler(fake, RouterConfig{})

	res := postAsk(t, handler, `{"q": "unrelated question"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("abstention is a 200 with a reason, got %d", res.Code)
	}

	var resp domain.AnswerResponse
	if err := json.NewDecoder(bytes.NewReader(res.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("expected null answer on abstention, got %q", *resp.Answer)
	}
	if resp.AbstainReason == nil || *resp.AbstainReason != reason {
		t.Fatalf("unexpected abstain reason: %+v", resp.AbstainReason)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(&answererFake{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", res.Code)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	handler := newTestHandler(&answererFake{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestRequestIDIsGeneratedWhenMissing(t *testing.T) {
	handler := newTestHandler(&answererFake{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id header")
	}
}
