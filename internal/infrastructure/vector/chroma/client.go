package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vmaslov/safety-docs-qa/internal/core/domain"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/resilience"
)

// Client is the vector index adapter over the Chroma HTTP API. Query results
// carry the engine's raw distances; converting distance to a similarity
// score is the orchestrator's concern, not this adapter's.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	exec       *resilience.Executor

	resolveMu    sync.Mutex
	collectionID string
}

func New(baseURL, collection string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Query(ctx context.Context, queryVector []float32, n int) ([]domain.VectorHit, error) {
	if n <= 0 {
		return nil, nil
	}

	collectionID, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query_embeddings": [][]float32{queryVector},
		"n_results":        n,
		"include":          []string{"documents", "metadatas", "distances"},
	}

	var queryResp struct {
		IDs       [][]string         `json:"ids"`
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
		Distances [][]float64        `json:"distances"`
	}
	err = c.exec.Execute(ctx, "vector_query", func(callCtx context.Context) error {
		path := fmt.Sprintf("/api/v1/collections/%s/query", collectionID)
		return c.postJSON(callCtx, path, reqBody, &queryResp, "query")
	}, classifyChromaError)
	if err != nil {
		return nil, err
	}

	if len(queryResp.IDs) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	out := make([]domain.VectorHit, 0, len(ids))
	for i, id := range ids {
		hit := domain.VectorHit{ID: id}
		if len(queryResp.Documents) > 0 && i < len(queryResp.Documents[0]) {
			hit.Content = queryResp.Documents[0][i]
		}
		if len(queryResp.Distances) > 0 && i < len(queryResp.Distances[0]) {
			hit.Distance = queryResp.Distances[0][i]
		}
		if len(queryResp.Metadatas) > 0 && i < len(queryResp.Metadatas[0]) {
			hit.SourceID = getStringMetadata(queryResp.Metadatas[0][i], "source_id")
			hit.Title = getStringMetadata(queryResp.Metadatas[0][i], "title")
		}
		out = append(out, hit)
	}
	return out, nil
}

// ChunkMetadata travels with each stored embedding and comes back verbatim
// on query hits.
type ChunkMetadata struct {
	SourceID string
	Title    string
}

func (c *Client) Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []ChunkMetadata) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("ids/vectors/documents/metadatas length mismatch")
	}

	collectionID, err := c.resolveCollection(ctx)
	if err != nil {
		return err
	}

	metaPayload := make([]map[string]any, 0, len(metadatas))
	for _, m := range metadatas {
		metaPayload = append(metaPayload, map[string]any{
			"source_id": m.SourceID,
			"title":     m.Title,
		})
	}

	reqBody := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metaPayload,
	}
	path := fmt.Sprintf("/api/v1/collections/%s/add", collectionID)
	return c.postJSON(ctx, path, reqBody, nil, "add")
}

// Recreate drops and re-creates the collection. The ingest pipeline rebuilds
// the corpus from scratch on every run.
func (c *Client) Recreate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, c.collection), nil)
	if err != nil {
		return fmt.Errorf("create delete collection request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma delete collection request: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	// 404 means the collection did not exist yet.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("chroma delete collection status: %s", resp.Status)
	}

	c.resolveMu.Lock()
	c.collectionID = ""
	c.resolveMu.Unlock()

	_, err = c.resolveCollection(ctx)
	return err
}

// resolveCollection creates-or-gets the collection once and caches its id.
func (c *Client) resolveCollection(ctx context.Context) (string, error) {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	reqBody := map[string]any{
		"name":          c.collection,
		"get_or_create": true,
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/v1/collections", reqBody, &created, "ensure collection"); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("chroma ensure collection: empty collection id")
	}
	c.collectionID = created.ID
	return c.collectionID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
		}
		return &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringMetadata(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
