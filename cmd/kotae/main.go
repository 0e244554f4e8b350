// Package main is the Kotae CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/library"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultServerURL = "http://127.0.0.1:8000"

// configCandidates returns the files tried, in order, when no --config is given.
func configCandidates() []string {
	candidates := []string{}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".kotae", "config.yaml"))
	}
	return candidates
}

// loadConfig loads config from path. An empty path tries ./config.yaml and then
// ~/.kotae/config.yaml, and falls back to the defaults when neither exists.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		for _, candidate := range configCandidates() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadEnv reads .env files that exist. Variables already set are kept.
func loadEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring %s: %v\n", p, err)
		}
	}
}

func main() {
	loadEnv(".env")
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
	case "retrieve":
		runRetrieve()
	case "chunk":
		runChunk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
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
	configPath := fs.String("config", "", "config file path (default: ./config.yaml, then ~/.kotae/config.yaml)")
	debug := fs.Bool("debug", false, "enable debug logging")
	host := fs.String("host", "", "listen host (overrides config)")
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{generator: true, library: true, watch: cfg.Library.Watch})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Service, cfg, version, logger)
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

// requestFlags are the flags shared by ask and retrieve.
type requestFlags struct {
	config   *string
	text     *string
	file     *string
	topK     *int
	maxChars *int
	minScore *float64
	library  *bool
	hybrid   *bool
	output   *string
	debug    *bool
}

func addRequestFlags(fs *flag.FlagSet) *requestFlags {
	return &requestFlags{
		config:   fs.String("config", "", "config file path"),
		text:     fs.String("context", "", "context text to answer from"),
		file:     fs.String("file", "", "read the context from a document (txt, md, pdf, docx, xlsx, ...)"),
		topK:     fs.Int("top-k", 0, "number of passages to use (default from config)"),
		maxChars: fs.Int("max-chars", 0, "maximum passage length in characters (default from config)"),
		minScore: fs.Float64("min-score", 0, "minimum cosine similarity of a passage (default from config)"),
		library:  fs.Bool("library", false, "also search the configured library directories"),
		hybrid:   fs.Bool("hybrid", false, "blend keyword and semantic scores (default from config)"),
		output:   fs.String("output", "text", "output format: text or json"),
		debug:    fs.Bool("debug", false, "enable debug logging"),
	}
}

// askRequest builds the request from the parsed flags. Only flags given explicitly
// override the configured defaults.
func (f *requestFlags) askRequest(fs *flag.FlagSet, question, contextText string) *models.AskRequest {
	req := &models.AskRequest{
		Question:   question,
		Context:    contextText,
		TopK:       *f.topK,
		MaxChars:   *f.maxChars,
		UseLibrary: *f.library,
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "min-score":
			v := *f.minScore
			req.MinScore = &v
		case "hybrid":
			v := *f.hybrid
			req.Hybrid = &v
		}
	})
	return req
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
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

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// readContext returns the context from text, else from the document at file, else from
// stdin when it is not a terminal.
func readContext(text, file string, stdin *os.File, extractor *extract.Extractor) (string, error) {
	if text != "" {
		return text, nil
	}
	if file != "" {
		return extractor.Extract(file)
	}
	if stdin == nil {
		return "", nil
	}
	info, err := stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	return readAll(stdin)
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func printRequestUsage(fs *flag.FlagSet, command string) {
	fmt.Fprintf(fs.Output(), "Usage: kotae %s [flags] <question>\n\n", command)
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces. The context comes from\n")
	fmt.Fprintf(fs.Output(), "--context, --file or stdin; with none of them the library is searched.\n\n")
	fs.PrintDefaults()
}

// prepareRequest parses the flags of ask or retrieve, loads the config and starts the
// components the command needs.
func prepareRequest(command string, withGenerator bool) (*Components, *models.AskRequest, cli.OutputFormat) {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	flags := addRequestFlags(fs)
	fs.Usage = func() { printRequestUsage(fs, command) }
	_ = fs.Parse(args)

	question := buildQuestion(fs.Args())
	if question == "" {
		printRequestUsage(fs, command)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*flags.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *flags.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if !debugMode {
		logger = zap.NewNop()
	}

	extractor := extract.NewExtractor(extract.WithMaxFileSize(cfg.Library.MaxFileSize))
	contextText, err := readContext(*flags.text, *flags.file, os.Stdin, extractor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read context: %v\n", err)
		os.Exit(1)
	}
	req := flags.askRequest(fs, question, contextText)

	wantLibrary := req.UseLibrary || strings.TrimSpace(contextText) == ""
	components, err := initializeComponents(context.Background(), cfg, logger, componentOptions{
		generator: withGenerator,
		library:   wantLibrary && len(cfg.Library.Directories) > 0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, req, cli.ParseOutputFormat(*flags.output)
}

func runAsk() {
	components, req, format := prepareRequest("ask", true)
	defer components.Close()

	resp, err := components.Service.Ask(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format, true); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRetrieve() {
	components, req, format := prepareRequest("retrieve", false)
	defer components.Close()

	resp, err := components.Service.Retrieve(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRetrieval(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runChunk() {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	text := fs.String("text", "", "text to split")
	file := fs.String("file", "", "read the text from a document")
	maxChars := fs.Int("max-chars", 0, "maximum passage length in characters (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	extractor := extract.NewExtractor(extract.WithMaxFileSize(cfg.Library.MaxFileSize))
	input, err := readContext(*text, *file, os.Stdin, extractor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read text: %v\n", err)
		os.Exit(1)
	}

	// Chunking needs no embedder.
	svc := rag.NewService(cfg.Retrieval, nil, nil)
	resp, err := svc.Chunk(&models.ChunkRequest{Text: input, MaxChars: *maxChars})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chunk failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteChunks(os.Stdout, resp, cli.ParseOutputFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (for local mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = report the local configuration)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, resolved, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		status = localStatus(cfg, resolved)
	}

	if cli.ParseOutputFormat(*outputFormat) == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	writeStatusText(os.Stdout, "", status)
}

// localStatus describes the configuration without a running server.
func localStatus(cfg *config.Config, configPath string) map[string]interface{} {
	status := map[string]interface{}{
		"version":     version,
		"config_path": configPath,
		"embedding": map[string]interface{}{
			"provider":   cfg.Embedding.Provider,
			"model":      cfg.Embedding.Model,
			"dimensions": cfg.Embedding.Dimensions,
		},
		"generation": map[string]interface{}{
			"provider": cfg.Generation.Provider,
			"model":    cfg.Generation.Model,
		},
		"retrieval": map[string]interface{}{
			"index_type": cfg.Retrieval.IndexType,
			"top_k":      cfg.Retrieval.TopK,
			"max_chars":  cfg.Retrieval.MaxChars,
			"min_score":  cfg.Retrieval.MinScoreOrDefault(),
			"hybrid":     cfg.Retrieval.Hybrid,
		},
		"library": map[string]interface{}{
			"directories": cfg.Library.Directories,
			"watch":       cfg.Library.Watch,
		},
	}
	if path := cfg.Cache.DatabasePath; path != "" {
		if diskBytes, err := storage.DiskUsageBytes(storage.SQLiteFiles(path)...); err == nil {
			status["cache_disk_usage_bytes"] = diskBytes
		}
	}
	return status
}

// writeStatusText prints nested status maps as indented "key: value" lines in key order.
func writeStatusText(w io.Writer, indent string, status map[string]interface{}) {
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := status[k].(map[string]interface{}); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeStatusText(w, indent+"  ", nested)
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, status[k])
	}
}

func statusViaHTTP(serverURL string) (map[string]interface{}, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return s, nil
}

// Components holds initialized services.
type Components struct {
	Store     *storage.SQLiteStore
	Embedder  embedding.Embedder
	Generator generation.Generator
	Library   *library.Library
	Service   *rag.Service
}

func (c *Components) Close() {
	if c.Library != nil {
		_ = c.Library.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

type componentOptions struct {
	generator bool
	library   bool
	watch     bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	c := &Components{}

	var store storage.EmbeddingStore
	if cfg.Cache.DatabasePath != "" {
		sqlStore, err := storage.NewSQLiteStore(cfg.Cache.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		c.Store = sqlStore
		store = sqlStore
		if cfg.Cache.MaxAgeDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.Cache.MaxAgeDays)
			n, err := sqlStore.Prune(ctx, cutoff)
			if err != nil {
				logger.Warn("embedding cache prune failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("embedding cache pruned", zap.Int64("entries", n))
			}
		}
	}

	embedder, err := embedding.NewFromConfig(cfg, store, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", embedder.Model()),
		zap.Bool("persistent_cache", store != nil))

	svcOpts := []rag.Option{rag.WithLogger(logger)}
	if opts.generator {
		gen, err := generation.NewFromConfig(cfg, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		c.Generator = gen
	}
	if opts.library {
		lib := library.New(cfg.Library, nil, library.WithLogger(logger))
		if _, err := lib.Load(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to load library: %w", err)
		}
		if opts.watch {
			if err := lib.Watch(ctx); err != nil {
				logger.Warn("library watch disabled", zap.Error(err))
			}
		}
		c.Library = lib
		svcOpts = append(svcOpts, rag.WithLibrary(lib))
	}

	c.Service = rag.NewService(cfg.Retrieval, embedder, c.Generator, svcOpts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Question answering over the context you send

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>     Answer a question from --context, --file or stdin
  kotae retrieve [flags] <question> Show the passages ask would use, without generating
  kotae chunk [flags]              Split text into passages
  kotae status [flags]             Show server or configuration status
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: ./config.yaml, then ~/.kotae/config.yaml)
  --debug            Enable debug logging
  --host string      Listen host (overrides config)
  --port int         Listen port (overrides config)

Ask/Retrieve Flags:
  --context string   Context text
  --file string      Read the context from a document (txt, md, rst, pdf, docx, xlsx, pptx, odt, ods, odp)
  --top-k int        Number of passages (default from config)
  --max-chars int    Maximum passage length (default from config)
  --min-score float  Minimum cosine similarity (default from config)
  --library          Also search the library directories
  --hybrid           Blend keyword and semantic scores
  --output string    Output format: text or json (default: text)

Chunk Flags:
  --text string      Text to split (or --file, or stdin)
  --max-chars int    Maximum passage length (default from config)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://127.0.0.1:8000). Use empty (--server "") for the local configuration.
  --output string    Output format: text or json (default: text)

Environment:
  NVIDIA_API_KEY, NVIDIA_LLM_API_KEY are read from the environment or a .env file.

Examples:
  kotae server
  kotae ask --file notes.pdf "when is the deadline?"
  cat article.txt | kotae ask what is the main argument
  kotae retrieve --output json --top-k 5 --context "$(cat doc.md)" "install steps"
  kotae chunk --max-chars 500 --file report.docx
  kotae status --output json`)
}
