// Command toolseek runs the code-executing chat relay and its interactive
// client. "serve" (the default) starts the HTTP relay; "chat" connects a
// line REPL to a running relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"toolseek/internal/adapter/cli"
	"toolseek/internal/adapter/exec"
	"toolseek/internal/adapter/gateway"
	"toolseek/internal/adapter/llm"
	"toolseek/internal/infra/config"
	"toolseek/internal/infra/logger"
	"toolseek/internal/infra/tracer"
	"toolseek/internal/usecase"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "serve"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "chat":
		if err := runChat(); err != nil {
			fmt.Fprintf(os.Stderr, "chat: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("toolseek " + version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'toolseek --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`toolseek - chat relay that lets a reasoning model run Go code mid-thought

USAGE:
    toolseek [COMMAND] [FLAGS]

COMMANDS:
    serve       Start the relay server (default)
    chat        Interactive chat against a running relay
    version     Print version

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)
    --url URL        Relay base URL for 'chat' (default: http://localhost:8000/v1)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: TOOLSEEK_* variables override config
    DEEPSEEK_API_KEY is honored when no upstream key is configured

EXAMPLES:
    toolseek                     # Serve with config.yaml (or defaults)
    toolseek serve --config /etc/toolseek.yaml
    toolseek chat                # Talk to a relay on localhost:8000
    toolseek chat --url https://relay.example.com/v1`)
}

// flagValue extracts --name VALUE or --name=VALUE from os.Args.
func flagValue(name string) string {
	prefix := "--" + name
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == prefix && i+1 < len(os.Args):
			return os.Args[i+1]
		case strings.HasPrefix(os.Args[i], prefix+"="):
			return strings.TrimPrefix(os.Args[i], prefix+"=")
		}
	}
	return ""
}

func configPath() string {
	if p := flagValue("config"); p != "" {
		return p
	}
	return "config.yaml"
}

func runServe() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	execProvider := exec.NewProvider(cfg.Exec.Timeout, log)

	upstream := llm.NewOpenAIProvider(cfg.Upstream, log)

	gwDeps := gateway.Deps{LLM: upstream, Logger: log, Version: version}
	orchDeps := usecase.Deps{
		LLM:         upstream,
		Exec:        execProvider,
		Logger:      log,
		MaxRestarts: cfg.Loop.MaxRestarts,
	}

	if cfg.Upstream.CircuitBreaker.Enabled {
		breaker := llm.NewCircuitBreakerProvider(upstream, cfg.Upstream.CircuitBreaker, log)
		gwDeps.LLM = breaker
		gwDeps.Breaker = breaker
		orchDeps.LLM = breaker
	}

	if cfg.Loop.EstimateTokens {
		orchDeps.Tokens = usecase.MaybeNewTokenEstimator(cfg.Loop.TokenEncoding, log)
	}

	gwDeps.Turns = usecase.New(orchDeps)

	server := gateway.NewServer(gwDeps, cfg.Server)

	log.Info("starting relay",
		"version", version,
		"upstream", cfg.Upstream.Name,
		"model", cfg.Upstream.Model,
	)
	return server.Start(ctx)
}

func runChat() error {
	baseURL := flagValue("url")
	if baseURL == "" {
		baseURL = os.Getenv("TOOLSEEK_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000/v1"
	}

	log, logCloser, err := logger.New(config.LoggerConfig{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	client := llm.NewOpenAIProvider(config.UpstreamConfig{
		Name:    "toolseek",
		BaseURL: baseURL,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repl := cli.NewREPL(client, cli.Options{
		In:      os.Stdin,
		Out:     os.Stdout,
		Logger:  log,
		Spinner: true,
	})
	return repl.Run(ctx)
}
