// Command skapctl manages account files and talks to the credential service
// from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	skap "github.com/lucannez64/skapauto-firefox-sub000"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/config"
)

// Config holds the I/O streams of one invocation.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultConfig returns a Config using the process streams.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func run(ctx context.Context, args []string, streams Config) error {
	return newApp(streams).Run(ctx, args)
}

func newApp(streams Config) *cli.Command {
	return &cli.Command{
		Name:      "skapctl",
		Usage:     "Manage skap accounts and credentials",
		Version:   "0.1.0",
		Reader:    streams.Stdin,
		Writer:    streams.Stdout,
		ErrWriter: streams.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Credential service base URL (overrides SKAP_SERVER_URL)",
			},
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Account file (overrides SKAP_ACCOUNT_FILE)",
			},
			&cli.StringFlag{
				Name:  "store-dir",
				Usage: "Directory of the on-disk cache (overrides SKAP_STORE_DIR)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			keygenCommand(),
			inspectCommand(),
			loginCommand(),
			listCommand(),
			addCommand(),
			cacheWipeCommand(),
			watchCommand(),
			serveCommand(),
		},
	}
}

// loadConfig reads the environment and the optional YAML file, then applies
// the global flags.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("server") {
		cfg.ServerURL = cmd.String("server")
	}
	if cmd.IsSet("account") {
		cfg.AccountFile = cmd.String("account")
	}
	if cmd.IsSet("store-dir") {
		cfg.StoreDir = cmd.String("store-dir")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	return cfg, nil
}

func newLogger(cmd *cli.Command, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.Root().ErrWriter, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// newClient builds a client from cfg.
func newClient(cmd *cli.Command, cfg *config.Config, extra ...skap.Option) (*skap.Client, error) {
	opts := []skap.Option{
		skap.WithBaseURL(cfg.ServerURL),
		skap.WithTimeout(cfg.Timeout),
		skap.WithRetries(cfg.MaxRetries),
		skap.WithRateLimit(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst),
		skap.WithCacheTTL(cfg.CacheTTL),
		skap.WithConcurrency(cfg.Concurrency),
		skap.WithLogger(newLogger(cmd, cfg)),
	}
	if cfg.StoreDir != "" {
		opts = append(opts, skap.WithStoreDir(cfg.StoreDir))
	}
	return skap.New(append(opts, extra...)...)
}
