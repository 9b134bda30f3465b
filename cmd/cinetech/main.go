// Command cinetech runs the movie assistant as an interactive terminal
// session.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/config"
	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/embedder/openai"
	"github.com/DarioTortorici/cinetech/engine"
	"github.com/DarioTortorici/cinetech/favorites"
	"github.com/DarioTortorici/cinetech/index"
	"github.com/DarioTortorici/cinetech/ingest"
	"github.com/DarioTortorici/cinetech/logging"
	"github.com/DarioTortorici/cinetech/memory"
	"github.com/DarioTortorici/cinetech/tmdb"
	"github.com/DarioTortorici/cinetech/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cinetech: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set CINETECH_LLM_API_KEY)")
	}
	if cfg.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required (set CINETECH_EMBEDDING_API_KEY)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb, err := openai.New(openai.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	idx, err := index.New(index.Config{
		Path:              cfg.Index.Path,
		Dimensions:        cfg.Embedding.Dimensions,
		MaxK:              cfg.Index.MaxK,
		OverfetchFactor:   cfg.Index.OverfetchFactor,
		OverfetchAttempts: cfg.Index.OverfetchAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}

	metadata, err := tmdb.New(tmdb.Config{
		BaseURL:          cfg.TMDB.BaseURL,
		APIKey:           cfg.TMDB.APIKey,
		Timeout:          cfg.TMDB.Timeout,
		CacheEntries:     cfg.TMDB.CacheEntries,
		CacheTTL:         cfg.TMDB.CacheTTL,
		BreakerThreshold: cfg.TMDB.BreakerThreshold,
		BreakerCooldown:  cfg.TMDB.BreakerCooldown,
	}, logger)
	if err != nil {
		return fmt.Errorf("tmdb client: %w", err)
	}

	if err := loadCatalog(ctx, cfg, idx, emb, metadata, logger); err != nil {
		return err
	}

	favs, err := favorites.Open(cfg.Favorites.Path, logger)
	if err != nil {
		return fmt.Errorf("favorites store: %w", err)
	}

	registry := tools.NewRegistry(
		tools.WithTimeout(cfg.Tools.Timeout),
		tools.WithMaxRetries(cfg.Tools.MaxRetries),
		tools.WithLogger(logger),
	)
	for _, tool := range tools.CinetechTools(tools.Deps{
		Embedder:  emb,
		Index:     idx,
		Metadata:  metadata,
		Favorites: favs,
		Logger:    logger,
	}) {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.LLM.APIKey))
	conversations := memory.NewConversations(memory.Config{
		MaxTurns:      cfg.Memory.MaxTurns,
		KeepRecent:    cfg.Memory.KeepRecent,
		SummaryBudget: cfg.Memory.SummaryBudget,
	}, logger)

	eng := engine.New(
		engine.NewAnthropicLLM(&client),
		registry,
		conversations,
		engine.Config{
			Model:           cfg.LLM.Model,
			MaxTokens:       cfg.LLM.MaxTokens,
			Timeout:         cfg.LLM.Timeout,
			MaxRetries:      cfg.LLM.MaxRetries,
			MaxToolRounds:   cfg.LLM.MaxToolRounds,
			GroundingBudget: cfg.LLM.GroundingBudget,
		},
		engine.WithLogger(logger),
		engine.WithFavorites(favs),
	)

	return repl(ctx, eng, logger)
}

// loadCatalog populates the index at startup, from a JSON batch when
// ingest.data_path is set, otherwise from the metadata provider's
// top-rated listing when ingest.fetch_count is positive.
func loadCatalog(ctx context.Context, cfg *config.Config, idx *index.Index, emb *openai.Provider, metadata *tmdb.Client, logger *zap.Logger) error {
	var (
		docs []core.Document
		err  error
	)
	switch {
	case cfg.Ingest.DataPath != "":
		docs, err = ingest.LoadFile(cfg.Ingest.DataPath)
		if err != nil {
			return err
		}
	case cfg.Ingest.FetchCount > 0:
		docs, err = ingest.FetchFromTMDB(ctx, metadata, cfg.Ingest.FetchCount, logger)
		if err != nil {
			return err
		}
	default:
		return nil
	}

	ing, err := ingest.New(idx, emb, cfg.Ingest.EmbedBatchSize, logger)
	if err != nil {
		return err
	}
	if err := ing.Run(ctx, docs); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.Int("documents", len(docs)))
	return nil
}

// repl reads user messages from stdin until EOF or interrupt. One
// process run is one session; /reset starts a fresh one.
func repl(ctx context.Context, eng *engine.Engine, logger *zap.Logger) error {
	sessionID := uuid.New().String()
	logger.Info("session started", zap.String("session_id", sessionID))

	fmt.Println("Cinetech movie assistant. Ask for a recommendation, or /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/reset":
			eng.Reset(sessionID)
			sessionID = uuid.New().String()
			fmt.Println("Started a new conversation.")
			continue
		}

		out, err := eng.Run(ctx, &engine.Input{SessionID: sessionID, UserMessage: line})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}

		fmt.Println(out.Text)
		for _, ref := range out.References {
			if ref.Year > 0 {
				fmt.Printf("  · %s (%d)\n", ref.Title, ref.Year)
			} else {
				fmt.Printf("  · %s\n", ref.Title)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}
