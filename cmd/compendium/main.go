// Package main is the Compendium CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/compendium/internal/cli"
	"github.com/hyperjump/compendium/internal/completion"
	"github.com/hyperjump/compendium/internal/config"
	"github.com/hyperjump/compendium/internal/embedding"
	"github.com/hyperjump/compendium/internal/extract"
	"github.com/hyperjump/compendium/internal/indexer"
	"github.com/hyperjump/compendium/internal/keyword"
	"github.com/hyperjump/compendium/internal/metrics"
	"github.com/hyperjump/compendium/internal/models"
	"github.com/hyperjump/compendium/internal/search"
	"github.com/hyperjump/compendium/internal/server"
	"github.com/hyperjump/compendium/internal/storage"
	"github.com/hyperjump/compendium/internal/tokenizer"
	"github.com/hyperjump/compendium/internal/watcher"
	"github.com/hyperjump/compendium/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/compendium/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	providerMock      = "mock"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory is preferred if it exists, so running from a project
// checkout picks up the project's config. Returns the path actually loaded.
// A missing default config is not an error: built-in defaults are used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("compendium version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v\n", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode, cfg.LogLevel)
	if err != nil {
		fatalf("Failed to create logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srvOpts := []server.Option{
		server.WithMetrics(components.Metrics),
		server.WithKeywordIndex(components.Keyword),
	}
	if cfg.Watch.Enabled {
		watchOpts := []watcher.WatcherOption{watcher.WithLogger(logger)}
		if cfg.Watch.Recursive {
			watchOpts = append(watchOpts, watcher.WithRecursive())
		}
		inbox := watcher.NewInbox(components.Indexer, &cfg.Watch, watchOpts...)
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer inbox.Stop()
		srvOpts = append(srvOpts, server.WithWatch(inbox, resolvedConfigPath))
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
		srvOpts...,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: compendium ask [flags] -doc <doc-id> <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  compendium ask -doc hotel-handbook what time is checkout
  compendium ask -doc hotel-handbook -debug "is breakfast included?"
  compendium ask -server "" -doc hotel-handbook where is the pool   # no server, read storage directly
`)
}

func runAsk() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	fs.Usage = func() { printAskUsage(fs) }
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; empty to answer without a running server")
	docID := fs.String("doc", "", "document to ask about")
	debug := fs.Bool("debug", false, "include the prompt and ranked chunks")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	question := joinArgs(fs.Args())
	if question == "" || strings.TrimSpace(*docID) == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fatalf("%v\n", err)
	}
	q := models.Query{QueryText: question, DocID: *docID}

	var answer *models.Answer
	if *serverURL != "" {
		client := server.NewClient(*serverURL, 2*time.Minute)
		answer, err = client.Ask(context.Background(), q, *debug)
	} else {
		answer, err = withComponents(*configPath, func(ctx context.Context, c *Components, _ *config.Config) (*models.Answer, error) {
			return c.Engine.Answer(ctx, q, *debug)
		})
	}
	if err != nil {
		fatalf("Ask failed: %v\n", err)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fatalf("%v\n", err)
	}
}

func runIngest() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docID := fs.String("doc-id", "", "document ID (single file only; derived from the path when empty)")
	deleteSource := fs.Bool("delete-source", false, "delete the file after it is ingested")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: compendium ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fatalf("%v\n", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v\n", err)
	}

	if info.IsDir() {
		n, err := withComponents(*configPath, func(ctx context.Context, c *Components, cfg *config.Config) (int, error) {
			return c.Indexer.IngestDirectory(ctx, path, cfg.Watch.Extensions)
		})
		if err != nil {
			fatalf("Ingesting directory failed: %v\n", err)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}

	res, err := withComponents(*configPath, func(ctx context.Context, c *Components, _ *config.Config) (*models.IngestResult, error) {
		return c.Indexer.IngestFile(ctx, path, *docID, *deleteSource)
	})
	if err != nil {
		fatalf("Ingestion failed: %v\n", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fatalf("%v\n", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty to delete from storage directly")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: compendium delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	var err error
	if *serverURL != "" {
		err = server.NewClient(*serverURL, 30*time.Second).DeleteDocument(context.Background(), docID)
	} else {
		_, err = withComponents(*configPath, func(ctx context.Context, c *Components, _ *config.Config) (struct{}, error) {
			return struct{}{}, c.Indexer.DeleteDocument(ctx, docID)
		})
	}
	if err != nil {
		fatalf("Deletion failed: %v\n", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; empty to read storage directly")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*output)
	if err != nil {
		fatalf("%v\n", err)
	}
	var st *models.Status
	if *serverURL != "" {
		st, err = server.NewClient(*serverURL, 30*time.Second).Status(context.Background())
	} else {
		st, err = withComponents(*configPath, func(ctx context.Context, c *Components, cfg *config.Config) (*models.Status, error) {
			return server.CollectStatus(ctx, c.Storage, c.Keyword, cfg, cfg.Watch.Directories)
		})
	}
	if err != nil {
		fatalf("Status failed: %v\n", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fatalf("%v\n", err)
	}
}

// withComponents loads the config, opens every component, runs fn and closes
// the components again. Used by the commands that work without a server.
func withComponents[T any](configPath string, fn func(context.Context, *Components, *config.Config) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return zero, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return zero, err
	}
	defer components.Close()
	return fn(ctx, components, cfg)
}

// joinArgs joins positional args with spaces so a question works with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that follow positional arguments to the front.
// The flag package stops at the first non-flag argument, so without this
// "compendium ask what time is checkout -doc handbook" would leave -doc unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
	os.Exit(1)
}

// Components holds initialized services. Tokenizer measures chunks and
// PromptTokenizer measures the context handed to the answering model.
type Components struct {
	Storage         storage.Storage
	Keyword         *keyword.BleveIndex
	Embedder        embedding.Embedder
	Completer       completion.Completer
	Tokenizer       tokenizer.Tokenizer
	PromptTokenizer tokenizer.Tokenizer
	Indexer         *indexer.Indexer
	Engine          *search.Engine
	Metrics         *metrics.Metrics
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.Open(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Keyword, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	c.Tokenizer, c.PromptTokenizer, err = newTokenizers(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	if cfg.Embedding.Provider == providerMock {
		c.Embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		c.Completer = completion.NewStatic(cfg.Retrieval.UncertainSentinel)
		logger.Warn("mock provider configured: answers are always the fallback message")
	} else {
		c.Embedder, err = embedding.NewOpenAIEmbedder(&cfg.Provider, &cfg.Embedding, embedding.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		c.Completer, err = completion.NewOpenAICompleter(&cfg.Provider, cfg.Retrieval.AnsweringModel, completion.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize completer: %w", err)
		}
	}

	chunker := indexer.NewChunker(c.Tokenizer, &cfg.Chunking, indexer.WithChunkerLogger(logger))
	c.Indexer = indexer.NewIndexer(store, c.Embedder, chunker, extract.NewExtractor(), &cfg.Embedding,
		indexer.WithLogger(logger),
		indexer.WithMetrics(c.Metrics),
		indexer.WithKeywordIndex(c.Keyword),
	)
	c.Engine = search.NewEngine(store, embedding.NewCachedEmbedder(c.Embedder, cfg.Embedding.CacheSize), c.Completer, c.PromptTokenizer, &cfg.Retrieval,
		search.WithLogger(logger),
		search.WithMetrics(c.Metrics),
		search.WithKeywordIndex(c.Keyword),
	)

	if err := syncKeywordIndexIfEmpty(ctx, c, logger); err != nil {
		logger.Warn("keyword index rebuild failed", zap.Error(err))
	}
	ok = true
	return c, nil
}

// newTokenizers returns the chunking tokenizer and the tokenizer of the
// answering model, sharing one encoder when both name the same model.
func newTokenizers(cfg *config.Config) (chunk, prompt tokenizer.Tokenizer, err error) {
	chunkTok, err := tokenizer.NewTiktoken(cfg.Chunking.TokenizerModel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Retrieval.AnsweringModel == cfg.Chunking.TokenizerModel {
		return chunkTok, chunkTok, nil
	}
	promptTok, err := tokenizer.NewTiktoken(cfg.Retrieval.AnsweringModel)
	if err != nil {
		return nil, nil, err
	}
	return chunkTok, promptTok, nil
}

// syncKeywordIndexIfEmpty rebuilds the keyword index from storage when the
// index is empty but storage is not, e.g. after the index directory was removed.
func syncKeywordIndexIfEmpty(ctx context.Context, c *Components, logger *zap.Logger) error {
	indexed, err := c.Keyword.DocCount()
	if err != nil || indexed > 0 {
		return err
	}
	docs, err := c.Storage.CountDocuments(ctx)
	if err != nil || docs == 0 {
		return err
	}
	n, err := c.Indexer.SyncKeywordIndex(ctx)
	if err != nil {
		return err
	}
	logger.Info("keyword index rebuilt from storage", zap.Int("documents", n))
	return nil
}

func printUsage() {
	fmt.Println(`compendium - question answering over your own documents

Usage:
  compendium server [flags]                    Start the HTTP server
  compendium ask [flags] -doc <id> <question>  Ask a question about a document
  compendium ingest [flags] <file|directory>   Chunk, embed and store documents
  compendium delete [flags] <id>               Delete a document
  compendium status [flags]                    Show storage and index status
  compendium version                           Show version
  compendium help                              Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/compendium/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to answer without a server.
  --doc string       Document ID to ask about
  --debug            Show the prompt and ranked chunks
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path
  --doc-id string    Document ID for a single file (default: derived from the file path)
  --delete-source    Delete the file after ingestion
  --output string    Output format: text or json (default: text)

Delete Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL; empty (default) deletes from storage directly

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  compendium server
  compendium ingest --doc-id hotel-handbook handbook.pdf
  compendium ingest ./inbox
  compendium ask -doc hotel-handbook what time is checkout
  compendium ask --output json -doc hotel-handbook "is there a pool?"
  compendium delete hotel-handbook
  compendium status --output json`)
}
