// Package main is the docuchat CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/docuchat/internal/app"
	"github.com/hyperjump/docuchat/internal/cli"
	"github.com/hyperjump/docuchat/internal/config"
	"github.com/hyperjump/docuchat/internal/extract"
	"github.com/hyperjump/docuchat/internal/inbox"
	"github.com/hyperjump/docuchat/internal/ingest"
	"github.com/hyperjump/docuchat/internal/models"
	"github.com/hyperjump/docuchat/internal/server"
	"github.com/hyperjump/docuchat/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docuchat/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; the environment may already carry the keys.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "files":
		runFiles()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("docuchat version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// direct loads config, builds the components and runs fn against them. Used when no server URL
// is given.
func direct(configPath string, fn func(ctx context.Context, c *app.Components) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	ctx := context.Background()
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, inbox events, pipeline stages)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var box *inbox.Inbox
	if len(cfg.Inbox.Directories) > 0 {
		box = inbox.New(cfg.Inbox.Directories, cfg.Inbox.Extensions, components.Pipeline, inbox.WithLogger(logger))
		if err := box.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox", zap.Error(err))
		}
		go box.SyncExisting()
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := components.Sessions.EvictIdle(); n > 0 {
					logger.Debug("evicted idle sessions", zap.Int("evicted", n), zap.Int("remaining", components.Sessions.Len()))
				}
			}
		}
	}()

	srv := server.NewServer(components.ServerDeps(), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if box != nil {
		box.Stop()
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// argsReorder moves any flags (and their values) that appear after the positional arguments to
// the front so that flag.Parse() sees them. Go's flag package stops at the first non-flag
// argument, so `docuchat ask "question" -user alice` would otherwise leave -user unparsed.
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

// buildQuery joins all positional args with spaces so multi-word questions work the same with
// or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func outputFlag(fs *flag.FlagSet) *string {
	return fs.String("output", "text", "output format: text or json")
}

func parseOutput(s string) cli.OutputFormat {
	f, err := cli.ParseOutputFormat(s)
	if err != nil {
		fail("%v", err)
	}
	return f
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the pipeline in-process)")
	user := fs.String("user", "", "owner id whose documents are searched")
	conversation := fs.String("conversation", "", "conversation id from a previous answer (empty = new conversation)")
	output := outputFlag(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuery(fs.Args())
	if question == "" || *user == "" {
		fmt.Println("Usage: docuchat ask --user <id> [--conversation <id>] <question>")
		os.Exit(1)
	}
	format := parseOutput(*output)
	req := models.SearchRequest{UserID: *user, Query: question, ConversationID: *conversation}

	if *serverURL != "" {
		resp, err := cli.NewClient(*serverURL).Search(context.Background(), req)
		if err != nil {
			fail("Ask failed: %v", err)
		}
		if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	err := direct(*configPath, func(ctx context.Context, c *app.Components) error {
		ans, err := c.Executor.Query(ctx, req.UserID, req.ConversationID, req.Query)
		if err != nil {
			return err
		}
		return cli.WriteAnswer(os.Stdout, &models.SearchResponse{
			SessionID: ans.ConversationID,
			Type:      "ai",
			Data:      models.MessageData{Content: ans.Content},
		}, format)
	})
	if err != nil {
		fail("Ask failed: %v", err)
	}
}

// collectFiles expands directories in paths into the regular files below them.
func collectFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the pipeline in-process)")
	user := fs.String("user", "", "owner id the documents belong to")
	output := outputFlag(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 || *user == "" {
		fmt.Println("Usage: docuchat ingest --user <id> <file-or-directory>...")
		os.Exit(1)
	}
	format := parseOutput(*output)
	files, err := collectFiles(fs.Args())
	if err != nil {
		fail("Failed to read input: %v", err)
	}

	failed := 0
	report := func(path string, resp *models.UploadResponse, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			return
		}
		_ = cli.WriteUpload(os.Stdout, filepath.Base(path), resp, format)
	}

	if *serverURL != "" {
		client := cli.NewClient(*serverURL)
		for _, path := range files {
			resp, err := client.Upload(context.Background(), *user, path)
			report(path, resp, err)
		}
	} else {
		err := direct(*configPath, func(ctx context.Context, c *app.Components) error {
			for _, path := range files {
				resp, err := ingestFile(ctx, c.Pipeline, *user, path)
				report(path, resp, err)
			}
			return nil
		})
		if err != nil {
			fail("Ingest failed: %v", err)
		}
	}
	if failed > 0 {
		fail("%d of %d file(s) failed", failed, len(files))
	}
}

func ingestFile(ctx context.Context, p *ingest.Pipeline, owner, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	name := filepath.Base(path)
	res, err := p.Ingest(ctx, owner, ingest.Upload{Filename: name, ContentType: extract.ContentTypeForName(name), Body: f})
	if err != nil {
		return nil, err
	}
	return &models.UploadResponse{
		Status:     "success",
		FileID:     res.File.ID,
		Chunks:     res.Chunks,
		Searchable: res.Searchable,
		Warning:    res.Warning,
	}, nil
}

func runFiles() {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the catalog directly)")
	user := fs.String("user", "", "owner id")
	output := outputFlag(fs)
	_ = fs.Parse(os.Args[2:])
	if *user == "" {
		fmt.Println("Usage: docuchat files --user <id>")
		os.Exit(1)
	}
	format := parseOutput(*output)

	var entries []models.FileEntry
	if *serverURL != "" {
		var err error
		entries, err = cli.NewClient(*serverURL).Files(context.Background(), *user)
		if err != nil {
			fail("Listing failed: %v", err)
		}
	} else {
		err := direct(*configPath, func(ctx context.Context, c *app.Components) error {
			records, err := c.Pipeline.Files(ctx, *user)
			if err != nil {
				return err
			}
			for _, r := range records {
				entries = append(entries, models.FileEntry{URL: r.URL, Name: r.Name, Type: r.Type})
			}
			return nil
		})
		if err != nil {
			fail("Listing failed: %v", err)
		}
	}
	if err := cli.WriteFiles(os.Stdout, entries, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = modify storage directly)")
	user := fs.String("user", "", "owner id")
	all := fs.Bool("all", false, "delete every file of the owner")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *user == "" || (!*all && fs.NArg() < 1) {
		fmt.Println("Usage: docuchat delete --user <id> (--all | <filename>)")
		os.Exit(1)
	}
	filename := fs.Arg(0)

	var err error
	if *serverURL != "" {
		client := cli.NewClient(*serverURL)
		if *all {
			err = client.DeleteAll(context.Background(), *user)
		} else {
			err = client.DeleteFile(context.Background(), *user, filename)
		}
	} else {
		err = direct(*configPath, func(ctx context.Context, c *app.Components) error {
			if *all {
				return c.Pipeline.RemoveAll(ctx, *user)
			}
			return c.Pipeline.Remove(ctx, *user, filename)
		})
	}
	if err != nil {
		fail("Deletion failed: %v", err)
	}
	if *all {
		fmt.Printf("All files deleted for %s\n", *user)
	} else {
		fmt.Printf("File deleted: %s\n", filename)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage directly)")
	output := outputFlag(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*output)

	var status map[string]interface{}
	if *serverURL != "" {
		var err error
		status, err = cli.NewClient(*serverURL).Status(context.Background())
		if err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		err := direct(*configPath, func(ctx context.Context, c *app.Components) error {
			var err error
			status, err = server.NewServer(c.ServerDeps(), c.Config, nil).Status(ctx)
			return err
		})
		if err != nil {
			fail("Status failed: %v", err)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func printUsage() {
	fmt.Println(`docuchat - chat with your own documents

Usage:
  docuchat server [flags]                          Start the HTTP server (and the inbox watcher)
  docuchat ingest --user <id> <file-or-dir>...     Upload documents for an owner
  docuchat ask --user <id> <question>              Ask a question about an owner's documents
  docuchat files --user <id>                       List an owner's files
  docuchat delete --user <id> (--all | <name>)     Delete one or all files of an owner
  docuchat status [flags]                          Show catalog/index/session status
  docuchat version                                 Show version
  docuchat help                                    Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/docuchat/config.yaml)
  --debug            Enable debug logging

Client Flags (ingest, ask, files, delete, status):
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run in-process
                     against the configured storage.
  --config string    Config file path for in-process mode
  --output string    Output format: text or json (default: text)

Ask Flags:
  --conversation string   Continue a conversation (id printed after each answer)

Examples:
  docuchat server
  docuchat ingest --user alice ~/Documents/invoices
  docuchat ask --user alice "what is the total of the March invoice?"
  docuchat ask --user alice --conversation 5f0c... "and the currency?"
  docuchat delete --user alice invoice.pdf
  docuchat status --output json`)
}
