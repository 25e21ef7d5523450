// Command accounts manages an event-sourced account collection from the
// command line. Settings are read from ACCOUNTS_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-estoria/accounts/internal/config"
	"github.com/go-estoria/accounts/internal/otel"
)

const serviceName = "accounts"

const otelShutdownTimeout = 5 * time.Second

const usage = `usage: accounts <command> [<args>]

Commands
   list        Print every account, ordered by name
   count       Print the number of accounts
   add         Add an account or update it if the ID exists
               -name <name> [-id <uuid>] [-attr key=value ...]
   remove      Remove an account
               -id <uuid>
   import      Add or update every account in a JSON array file
               -file <path> [-workers <n>]
   help        Display this message

Environment
   ACCOUNTS_STORE               memory, sqlite or bbolt (default sqlite)
   ACCOUNTS_SQLITE_PATH         SQLite database file (default accounts.db)
   ACCOUNTS_BOLT_PATH           BoltDB file (default accounts.bolt)
   ACCOUNTS_STREAM              event stream name (default accounts2)
   ACCOUNTS_RETRY_MAX_TRIES     attempts per store operation, 0 or 1 disables retries (default 5)
   ACCOUNTS_RETRY_MAX_ELAPSED   time budget per store operation (default 10s)
   ACCOUNTS_LOG_LEVEL           DEBUG, INFO, WARN or ERROR (default INFO)
   ACCOUNTS_OTEL_ENDPOINT       OTLP/HTTP endpoint URL; tracing is off when empty
   ACCOUNTS_OTEL_ENABLED        set to false to disable tracing
`

var errUsage = errors.New("usage")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	configureLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runWithTelemetry(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithTelemetry(ctx context.Context, cfg config.Config, args []string, stdout io.Writer) error {
	shutdown, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()

		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	return run(ctx, cfg, args, stdout)
}

func configureLogging(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case "time":
				t := a.Value.Time()
				return slog.Attr{
					Key:   "t",
					Value: slog.StringValue(t.Format(time.TimeOnly)),
				}
			case "level":
				return slog.Attr{
					Key:   "l",
					Value: a.Value,
				}
			}

			return a
		},
	})))
}
