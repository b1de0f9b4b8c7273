// Package main is the horomatch CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/horomatch/internal/config"
	"github.com/hyperjump/horomatch/internal/extract"
	"github.com/hyperjump/horomatch/internal/relay"
	"github.com/hyperjump/horomatch/internal/server"
	"github.com/hyperjump/horomatch/internal/storage"
	"github.com/hyperjump/horomatch/internal/watcher"
	"github.com/hyperjump/horomatch/pkg/utils"
)

var version = "dev"

const defaultConfigPath = config.DefaultPath

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing file at the default path means built-in defaults; the returned path is
// then empty. Returns the config and the path that was actually loaded.
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
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
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
	args := os.Args[2:]
	switch command {
	case "relay":
		runRelay(args)
	case "server":
		runServer(args)
	case "locations":
		runLocations(args)
	case "find":
		runFind(args)
	case "original":
		runOriginal(args)
	case "history":
		runHistory(args)
	case "ignored":
		runIgnored(args)
	case "config":
		runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("horomatch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config and builds a logger. Long-running servers log
// through the production logger; one-shot commands log to stderr.
func setup(configPath string, debug, cliLogger bool) (*config.Config, string, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	var logger *zap.Logger
	if cliLogger {
		logger, err = utils.NewCLILogger(debugMode)
	} else {
		logger, err = utils.NewLogger(debugMode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	return cfg, resolvedConfigPath, logger
}

func relayOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		Listen:       cfg.Relay.Addr(),
		BasePath:     cfg.Relay.BasePath,
		AuthToken:    cfg.Relay.AuthToken,
		SearchURL:    cfg.Relay.SearchURL,
		MatchURL:     cfg.Relay.MatchURL,
		NakshatraURL: cfg.Relay.NakshatraURL,
		Origin:       cfg.Relay.Origin,
		UserAgent:    cfg.Relay.UserAgent,
		Timeout:      cfg.Relay.Timeout,
		MaxBodyBytes: cfg.Relay.MaxBodyBytes,
	}
}

func runRelay(args []string) {
	fs := newFlagSet("relay")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, _, logger := setup(*configPath, *debug, false)
	defer logger.Sync()

	srv := relay.NewServer(relayOptions(cfg), logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Relay failed", zap.Error(err))
		}
	}()

	waitForSignal()
	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runServer(args []string) {
	fs := newFlagSet("server")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (ladder steps, relay calls, config reloads)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug, false)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if resolvedConfigPath != "" {
		watchSvc := watcher.NewWatcher(
			[]string{resolvedConfigPath},
			func(path string) { reloadExtractor(path, components, logger) },
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Warn("config watcher not started", zap.String("path", resolvedConfigPath), zap.Error(err))
		} else {
			logger.Info("watching config for pattern changes", zap.Strings("files", watchSvc.Files()))
			defer watchSvc.Stop()
		}
	}

	var dbPath string
	if cfg.Storage.Driver == storage.DriverSQLite {
		dbPath = cfg.Storage.DatabasePath
	}
	srv := server.NewServer(components.Orchestrator, components.Client, &cfg.Server, dbPath, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	waitForSignal()
	logger.Info("Shutting down...")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// reloadExtractor re-reads the config file and swaps in its extraction patterns.
// A bad file or pattern keeps the current extractor.
func reloadExtractor(path string, c *Components, logger *zap.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	e, err := newExtractor(cfg)
	if err != nil {
		logger.Warn("config reload: keeping previous patterns", zap.Error(err))
		return
	}
	c.Client.SetExtractor(e)
	logger.Info("extraction patterns reloaded", zap.String("path", path))
}

func newExtractor(cfg *config.Config) (*extract.PatternExtractor, error) {
	return extract.NewPatternExtractor(extract.Patterns{
		Score:     cfg.Extract.ScorePattern,
		Nakshatra: cfg.Extract.NakshatraPattern,
		Rasi:      cfg.Extract.RasiPattern,
	})
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

func printUsage() {
	fmt.Println(`horomatch - Find a birth date with high horoscope compatibility

Usage:
  horomatch relay [flags]                 Start the proxy relay
  horomatch server [flags]                Start the HTTP API server
  horomatch locations [flags] <query>     Search birth locations
  horomatch find [flags]                  Find a compatible birth date
  horomatch original [flags]              Score the counterpart's own birth date
  horomatch history [list|apply <id>]     Show or replay past searches
  horomatch ignored [list|remove <d> <m>] Show or edit the ignore list
  horomatch config [init [path]|show|env] Write, print or list config overrides
  horomatch version                       Show version
  horomatch help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/horomatch/config.yaml)
  --debug            Enable debug logging
  --json             Print JSON instead of text (locations, find, original, history, ignored)

Find/Original Flags:
  --name string      Subject name
  --place string     Birth place to search for (first result is used unless --loc is set)
  --loc string       Location id to pick from the place search results
  --date string      Birth date, YYYY-MM-DD
  --time string      Birth time, HH:MM or digits (1430)
  --ampm string      am or pm
  --next             Find another match: resume the newest history entry for these inputs
  --retry            Run the ladder again without ignoring the current result
  --details          Print the scoring page as Markdown

History Flags:
  --q string         Case-insensitive filter (name, place, date, nakshatra, rasi)

Config Flags:
  --force            Overwrite an existing file (init)

Examples:
  horomatch relay
  horomatch server
  horomatch locations chennai
  horomatch find --name Priya --place Chennai --date 1998-05-10 --time 1430 --ampm pm
  horomatch find --next --name Priya --place Chennai --date 1998-05-10 --time 14:30 --ampm pm
  horomatch history --q rohini
  horomatch ignored remove 23 7
  horomatch config init ./config.yaml`)
}
