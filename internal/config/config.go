package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	SQLitePath string

	ChromaURL        string
	ChromaCollection string

	OllamaURL        string
	OllamaEmbedModel string

	AskTopK int
	// AskAlpha weighs the normalized vector score in reranked mode.
	AskAlpha float64
	// AskAbstainThreshold is compared against the top ranked score. The
	// scale differs by mode: raw vector similarity in baseline, normalized
	// blend in reranked. Kept as one constant on purpose; see DESIGN.md.
	AskAbstainThreshold    float64
	AskCandidateMultiplier int
	AskLexicalConcurrency  int
	AskLexicalTimeoutMS    int

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int

	IngestSourcesFile  string
	IngestDataDir      string
	IngestChunkSize    int
	IngestChunkOverlap int
	IngestEmbedBatch   int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		SQLitePath: mustEnv("SQLITE_PATH", "./data/chunks.db"),

		ChromaURL:        mustEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection: mustEnv("CHROMA_COLLECTION", "safety_docs"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		AskTopK:                mustEnvInt("ASK_TOP_K", 5),
		AskAlpha:               mustEnvFloat("ASK_RERANK_ALPHA", 0.5),
		AskAbstainThreshold:    mustEnvFloat("ASK_ABSTAIN_THRESHOLD", 0.4),
		AskCandidateMultiplier: mustEnvInt("ASK_CANDIDATE_MULTIPLIER", 3),
		AskLexicalConcurrency:  mustEnvInt("ASK_LEXICAL_CONCURRENCY", 8),
		AskLexicalTimeoutMS:    mustEnvInt("ASK_LEXICAL_TIMEOUT_MS", 2000),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 64),

		IngestSourcesFile:  mustEnv("INGEST_SOURCES_FILE", "./data/sources.json"),
		IngestDataDir:      mustEnv("INGEST_DATA_DIR", "./data"),
		IngestChunkSize:    mustEnvInt("INGEST_CHUNK_SIZE", 512),
		IngestChunkOverlap: mustEnvInt("INGEST_CHUNK_OVERLAP", 50),
		IngestEmbedBatch:   mustEnvInt("INGEST_EMBED_BATCH", 32),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
