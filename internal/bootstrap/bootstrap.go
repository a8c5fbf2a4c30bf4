package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/vmaslov/safety-docs-qa/internal/config"
	"github.com/vmaslov/safety-docs-qa/internal/core/ports"
	"github.com/vmaslov/safety-docs-qa/internal/core/usecase"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/chunking"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/embedding/ollama"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/lexical/sqlitefts"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/resilience"
	"github.com/vmaslov/safety-docs-qa/internal/infrastructure/vector/chroma"
)

type App struct {
	Config config.Config

	Embedder *ollama.Client
	VectorDB *chroma.Client
	Lexical  *sqlitefts.Store
	Chunker  *chunking.Splitter
	AskUC    ports.QuestionAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := sqlitefts.OpenDB(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	lexical := sqlitefts.NewStore(db)

	exec := resilience.NewExecutor(resilience.DefaultConfig())
	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, exec)
	vectorDB := chroma.New(cfg.ChromaURL, cfg.ChromaCollection, exec)
	chunker := chunking.NewSplitter(cfg.IngestChunkSize, cfg.IngestChunkOverlap)

	askUC := usecase.NewAskUseCase(embedder, vectorDB, lexical, usecase.AskOptions{
		Alpha:               cfg.AskAlpha,
		AbstainThreshold:    cfg.AskAbstainThreshold,
		DefaultK:            cfg.AskTopK,
		CandidateMultiplier: cfg.AskCandidateMultiplier,
		LexicalConcurrency:  cfg.AskLexicalConcurrency,
		LexicalTimeout:      time.Duration(cfg.AskLexicalTimeoutMS) * time.Millisecond,
	})

	return &App{
		Config: cfg,

		Embedder: embedder,
		VectorDB: vectorDB,
		Lexical:  lexical,
		Chunker:  chunker,
		AskUC:    askUC,

		closeFn: func() {
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
