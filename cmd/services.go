package cmd

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/engramdb/engram/pkg/embedding"
	"github.com/engramdb/engram/pkg/errors"
	"github.com/engramdb/engram/pkg/memory"
	"github.com/engramdb/engram/pkg/stores/postgres"
	"github.com/engramdb/engram/pkg/stores/sqlite"
	"github.com/engramdb/engram/pkg/synthesis"
)

/*
services holds the fully wired service graph a command operates on. The
backend is owned by the struct and must be released with Close.
*/
type services struct {
	backend memory.Backend
	store   *memory.Store
	index   *memory.Index
	graph   *memory.Graph
	bus     *memory.Bus
}

func (s *services) Close() error {
	return s.backend.Close()
}

/*
buildServices constructs the backend, embedder, and optional summarizer from
the loaded config and wires the memory services on top of them. The backend
is picked once at startup; there is no runtime switching.
*/
func buildServices(ctx context.Context) (*services, error) {
	backend, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}

	if err = backend.Ping(ctx); err != nil {
		backend.Close()
		return nil, err
	}

	embedder := buildEmbedder()
	coordinator := buildCoordinator()

	maxChars := viper.GetInt("embedding.max_chars")

	storeOpts := []memory.StoreOption{memory.WithCoordinator(coordinator)}
	if maxChars > 0 {
		storeOpts = append(storeOpts, memory.WithMaxEmbedChars(maxChars))
	}
	if extra := viper.GetStringSlice("memory.extra_types"); len(extra) > 0 {
		storeOpts = append(storeOpts, memory.WithExtraMemoryTypes(extra))
	}
	if viper.GetBool("memory.auto_link.enabled") {
		storeOpts = append(storeOpts, memory.WithAutoLink(
			viper.GetFloat64("memory.auto_link.similarity_threshold"),
			viper.GetInt("memory.auto_link.max_links"),
		))
	}

	indexOpts := []memory.IndexOption{memory.WithRecallCoordinator(coordinator)}
	if topK := viper.GetInt("recall.top_k"); topK > 0 {
		indexOpts = append(indexOpts, memory.WithDefaultLimit(topK))
	}
	if viper.IsSet("recall.min_score") {
		indexOpts = append(indexOpts, memory.WithMinScore(viper.GetFloat64("recall.min_score")))
	}
	if maxChars > 0 {
		indexOpts = append(indexOpts, memory.WithIndexMaxEmbedChars(maxChars))
	}

	return &services{
		backend: backend,
		store:   memory.NewStore(backend, embedder, storeOpts...),
		index:   memory.NewIndex(backend, embedder, indexOpts...),
		graph:   memory.NewGraph(backend),
		bus:     memory.NewBus(backend),
	}, nil
}

func openBackend(ctx context.Context) (memory.Backend, error) {
	switch kind := viper.GetString("backend.type"); kind {
	case "sqlite", "":
		return sqlite.Open(viper.GetString("backend.sqlite.path"))
	case "postgres":
		return postgres.Open(ctx, viper.GetString("backend.postgres.dsn"))
	default:
		return nil, errors.Validation("unknown backend type %q", kind)
	}
}

func buildEmbedder() memory.Embedder {
	switch provider := viper.GetString("embedding.provider"); provider {
	case "openai":
		opts := []embedding.OpenAIEmbedderOption{}
		if model := viper.GetString("embedding.openai.model"); model != "" {
			opts = append(opts, embedding.WithOpenAIModel(model))
		}
		return embedding.NewOpenAIEmbedder(opts...)
	default:
		opts := []embedding.OllamaEmbedderOption{}
		if host := viper.GetString("embedding.ollama.host"); host != "" {
			opts = append(opts, embedding.WithOllamaHost(host))
		}
		if model := viper.GetString("embedding.model"); model != "" {
			opts = append(opts, embedding.WithOllamaModel(model))
		}
		return embedding.NewOllamaEmbedder(opts...)
	}
}

/*
buildCoordinator returns nil when synthesis is disabled, which the services
treat as "fall back to plain listings".
*/
func buildCoordinator() *memory.Coordinator {
	if !viper.GetBool("synthesis.enabled") {
		return nil
	}

	opts := []synthesis.OllamaSummarizerOption{}
	if host := viper.GetString("embedding.ollama.host"); host != "" {
		opts = append(opts, synthesis.WithOllamaHost(host))
	}
	if model := viper.GetString("synthesis.model"); model != "" {
		opts = append(opts, synthesis.WithOllamaModel(model))
	}

	coordOpts := []memory.CoordinatorOption{}
	if secs := viper.GetInt("synthesis.timeout_seconds"); secs > 0 {
		coordOpts = append(coordOpts, memory.WithSynthesisTimeout(time.Duration(secs)*time.Second))
	}

	return memory.NewCoordinator(synthesis.NewOllamaSummarizer(opts...), coordOpts...)
}
