package cmd

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/studyowl/coursechat/internal/config"
	"github.com/studyowl/coursechat/internal/course"
	"github.com/studyowl/coursechat/internal/index"
	"github.com/studyowl/coursechat/internal/log"
	"github.com/studyowl/coursechat/internal/rag"
	"github.com/studyowl/coursechat/internal/session"
	"github.com/studyowl/coursechat/internal/tools"
)

// app bundles the wired components a command works with.
type app struct {
	cfg    *config.Config
	logger log.Logger
	system *rag.System
	store  *index.Store
}

// setup loads configuration and wires the full system: Gemini client,
// chroma-backed index, tools, generator and session store.
func setup(ctx context.Context, logger log.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	embedder := index.NewGeminiEmbedder(client, cfg.EmbeddingModel)
	store, err := index.NewChromaStore(ctx, cfg.ChromaURL, embedder, cfg.MaxResults, logger)
	if err != nil {
		return nil, fmt.Errorf("opening semantic index: %w", err)
	}

	processor, err := course.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating document processor: %w", err)
	}

	registry := tools.NewRegistry(
		tools.NewSearchTool(store),
		tools.NewOutlineTool(store),
	)

	system := rag.New(rag.Config{
		Processor: processor,
		Index:     store,
		Generator: rag.NewGenerator(client, cfg.ModelName, cfg.MaxToolRounds, logger),
		Sessions:  session.NewStore(cfg.MaxHistory, logger),
		Registry:  registry,
		Logger:    logger,
	})

	return &app{cfg: cfg, logger: logger, system: system, store: store}, nil
}

// Close releases the index connection.
func (a *app) Close() error {
	return a.store.Close()
}
