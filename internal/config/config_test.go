package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		MongoURI:           DefaultMongoURI,
		MongoDatabase:      DefaultMongoDatabase,
		WatchCollections:   []string{"documentos"},
		RabbitURL:          DefaultRabbitURL,
		QueueName:          DefaultQueueName,
		DeadLetterQueue:    DefaultDeadLetterQueue,
		RedisAddr:          DefaultRedisAddr,
		QdrantHost:         DefaultQdrantHost,
		QdrantPort:         DefaultQdrantPort,
		EmbeddingProvider:  "google",
		EmbeddingModel:     DefaultEmbeddingModel,
		EmbeddingDimension: DefaultEmbeddingDimension,
		ChunkSize:          1000,
		ChunkOverlap:       200,
		WorkerCount:        4,
		PrefetchFactor:     2,
		RetryLimit:         3,
		MaxRawTextBytes:    DefaultMaxRawTextBytes,
		OpsListenAddr:      DefaultOpsListenAddr,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidate_OverlapAtLeastChunkSize(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"equal", 1000, 1000},
		{"larger", 500, 800},
		{"negative", 1000, -1},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.ChunkSize = tt.size
		cfg.ChunkOverlap = tt.overlap
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error for size=%d overlap=%d", tt.name, tt.size, tt.overlap)
		}
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.EmbeddingProvider = "cohere"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestValidate_WorkerAndPrefetchBounds(t *testing.T) {
	cfg := validConfig()
	cfg.WorkerCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}

	cfg = validConfig()
	cfg.PrefetchFactor = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero prefetch factor")
	}
}

func TestPrefetch(t *testing.T) {
	cfg := validConfig()
	cfg.WorkerCount = 4
	cfg.PrefetchFactor = 3
	if got := cfg.Prefetch(); got != 12 {
		t.Errorf("Prefetch() = %d; want 12", got)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" documentos, recursos ,,archivos ")
	want := []string{"documentos", "recursos", "archivos"}
	if len(got) != len(want) {
		t.Fatalf("splitList returned %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}
