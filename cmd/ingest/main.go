package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vmaslov/safety-docs-qa/internal/bootstrap"
	"github.com/vmaslov/safety-docs-qa/internal/config"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/extractor"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/lexical/sqlitefts"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/vector/chroma"
	"github.com/vmaslov/safety-docs-qa/internal/observability/logging"
)

type sourceEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New("ingest", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, cfg, app); err != nil {
		slog.Error("ingest_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, app *bootstrap.App) error {
	sources, err := loadSources(cfg.IngestSourcesFile)
	if err != nil {
		return err
	}
	slog.Info("sources_loaded", "count", len(sources))

	// Every run rebuilds both indexes from scratch so they stay in lockstep.
	if err := app.Lexical.Reset(ctx); err != nil {
		return fmt.Errorf("reset lexical index: %w", err)
	}
	if err := app.VectorDB.Recreate(ctx); err != nil {
		return fmt.Errorf("recreate vector collection: %w", err)
	}

	var (
		totalChunks int
		ids         []string
		documents   []string
		metadatas   []chroma.ChunkMetadata
	)

	for _, source := range sources {
		path := resolveSourcePath(cfg.IngestDataDir, source.Path)
		if _, err := os.Stat(path); err != nil {
			slog.Warn("source_file_missing", "source_id", source.ID, "path", path)
			continue
		}

		text, err := extractor.ExtractText(path)
		if err != nil {
			slog.Warn("extract_failed", "source_id", source.ID, "path", path, "error", err)
			continue
		}

		chunks := app.Chunker.Split(text)
		for i, chunk := range chunks {
			chunkID := fmt.Sprintf("%s-%d", source.ID, i)
			record := sqlitefts.ChunkRecord{
				ID:       chunkID,
				Content:  chunk,
				SourceID: source.ID,
				ChunkNum: i,
			}
			if err := app.Lexical.InsertChunk(ctx, record); err != nil {
				return fmt.Errorf("insert chunk %s: %w", chunkID, err)
			}

			ids = append(ids, chunkID)
			documents = append(documents, chunk)
			metadatas = append(metadatas, chroma.ChunkMetadata{
				SourceID: source.ID,
				Title:    source.Title,
			})
		}

		totalChunks += len(chunks)
		slog.Info("source_processed", "source_id", source.ID, "chunks", len(chunks))
	}

	batch := cfg.IngestEmbedBatch
	if batch <= 0 {
		batch = 32
	}
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}

		vectors, err := app.Embedder.Embed(ctx, documents[start:end])
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if err := app.VectorDB.Add(ctx, ids[start:end], vectors, documents[start:end], metadatas[start:end]); err != nil {
			return fmt.Errorf("store batch at %d: %w", start, err)
		}
	}

	slog.Info("ingest_complete", "sources", len(sources), "chunks", totalChunks)
	return nil
}

func loadSources(path string) ([]sourceEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sources []sourceEntry
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	return sources, nil
}

// resolveSourcePath joins an entry path to the data directory, dropping the
// leading path segment the manifest carries for historical reasons.
func resolveSourcePath(dataDir, entryPath string) string {
	if _, rest, found := strings.Cut(entryPath, "/"); found {
		return filepath.Join(dataDir, filepath.FromSlash(rest))
	}
	return filepath.Join(dataDir, entryPath)
}
