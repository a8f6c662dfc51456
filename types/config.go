package types

import (
	"os"
	"strconv"
	"time"
)

// Config collects the tunables for the pipeline and the agents. Values
// come from the environment; see envInt/envDuration for defaults.
type Config struct {
	UploadDir      string
	MaxFileSize    int64
	ChunkSize      int // words per chunk
	ChunkOverlap   int // words shared between consecutive chunks
	EmbedBatchSize int
	EmbedRetries   int
	TopK           int
	MinRelevance   float64
	HistoryWindow  int // messages of chat history fed to the model
	Workers        int
	CallTimeout    time.Duration // per external call (parse, embed, generate)
}

func ConfigFromEnv() Config {
	return Config{
		UploadDir:      envStr("UPLOAD_DIR", "/tmp/uploads"),
		MaxFileSize:    int64(envInt("MAX_FILE_SIZE", 50*1024*1024)),
		ChunkSize:      envInt("CHUNK_SIZE", 200),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 40),
		EmbedBatchSize: envInt("EMBED_BATCH_SIZE", 64),
		EmbedRetries:   envInt("EMBED_RETRIES", 3),
		TopK:           envInt("SEARCH_TOP_K", 5),
		MinRelevance:   envFloat("MIN_RELEVANCE", 0.6),
		HistoryWindow:  envInt("CHAT_HISTORY_WINDOW", 10),
		Workers:        envInt("WORKERS", 4),
		CallTimeout:    envDuration("CALL_TIMEOUT", 120*time.Second),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
