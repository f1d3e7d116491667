package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hpungsan/feedvault/internal/app"
	"github.com/hpungsan/feedvault/internal/config"
	"github.com/hpungsan/feedvault/internal/logging"
	"github.com/hpungsan/feedvault/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"ingest": true, "get": true, "query": true, "search": true,
	"delete": true, "stats": true, "settings": true,
	"export": true, "import": true, "cleanup": true, "optimize": true,
	"clear-all": true, "quota": true, "events": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	switch args[1] {
	case "--help", "-h", "--version", "-v", "help":
		return true
	}
	return false
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___              ___   __          ____
  / __/__ ___ ___/ / | / /__ ___ __/ / /_
 / _// -_) -_) _  /| |/ / _ '/ // / / __/
/_/  \__/\__/\_,_/ |___/\_,_/\_,_/_/\__/

  Local feed record vault

  Usage: feedvault <command> [options]
         feedvault --help

  MCP server mode requires piped input.`)
}

// baseDir returns $FEEDVAULT_HOME, or ~/.feedvault.
func baseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("FEEDVAULT_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".feedvault"), nil
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	// No args + interactive terminal → show banner and exit
	if len(args) < 2 && isTerminal() {
		printBanner()
		return 0
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(args) {
		if err := newCLIApp(nil).Run(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	cliMode := isCLIMode(args)

	// Unknown argument + terminal → show error (don't start MCP server)
	if !cliMode && len(args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", args[1])
		fmt.Fprintf(os.Stderr, "Run 'feedvault --help' for usage.\n")
		return 1
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = dir
	}
	cfg, err := config.LoadWithRepo(dir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		return 1
	}

	// stdout carries the MCP protocol or the CLI's JSON; logs always go to stderr.
	log := logging.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	warnUnknownDisabled(log, cfg)

	a, err := app.Open(dir, cfg, app.Options{
		Version:        Version,
		Logger:         log,
		DisableMetrics: !cliMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cliMode {
		if err := newCLIApp(a).RunContext(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		return 0
	}

	// MCP server mode (default). The quota monitor runs alongside the stdio
	// loop and stops when stdin closes.
	err = a.Run(ctx, func(context.Context) error {
		defer stop()
		return mcp.Run(a.Dispatcher, cfg, Version)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// warnUnknownDisabled logs disabled tool or type names that match nothing.
func warnUnknownDisabled(log *slog.Logger, cfg *config.Config) {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("config: unknown disabled_tools", "names", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("config: unknown disabled_types", "names", unknown)
	}
}
