// Command migrate-store copies the engine's documents from one storage backend to another and
// upgrades the record store to the current version on the target.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/whatasoda/twitch-clips-todo/internal/adapter/storage"
	"github.com/whatasoda/twitch-clips-todo/internal/app"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/config"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/logging"
	"github.com/whatasoda/twitch-clips-todo/internal/twitch"
)

type options struct {
	dryRun    bool
	skipCache bool
}

type summary struct {
	copied      int
	missing     int
	fromVersion int
	records     int
}

func main() {
	var (
		fromURL   = flag.String("from", os.Getenv("MIGRATE_FROM_URL"), "Source backend URL, redis:// or postgres:// (or set MIGRATE_FROM_URL env)")
		toURL     = flag.String("to", os.Getenv("MIGRATE_TO_URL"), "Target backend URL, redis:// or postgres:// (or set MIGRATE_TO_URL env)")
		dryRun    = flag.Bool("dry-run", false, "Dry run mode (read the source, don't write the target)")
		skipCache = flag.Bool("skip-cache", false, "Don't copy the persistent Twitch caches")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *fromURL == "" || *toURL == "" {
		log.Fatal("Source and target URLs required (--from/--to or MIGRATE_FROM_URL/MIGRATE_TO_URL env)")
	}

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	src := open(ctx, *fromURL)
	defer src.Close()
	dst := open(ctx, *toURL)
	defer dst.Close()

	result, err := migrate(ctx, src.Store, dst.Store, options{dryRun: *dryRun, skipCache: *skipCache})
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	slog.Info("Migration complete",
		"copied", result.copied,
		"missing", result.missing,
		"records", result.records,
		"from_version", result.fromVersion,
		"dry_run", *dryRun)
}

func open(ctx context.Context, rawURL string) *storage.Backend {
	backend, err := backendFor(rawURL)
	if err != nil {
		log.Fatal(err)
	}
	b, err := storage.Open(ctx, backend, rawURL, storage.Options{})
	if err != nil {
		log.Fatalf("Failed to open %s: %v", sanitizeURL(rawURL), err)
	}
	slog.Info("Connected", "backend", backend, "url", sanitizeURL(rawURL))
	return b
}

// backendFor maps a URL scheme onto a storage backend name.
func backendFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss":
		return config.StorageRedis, nil
	case "postgres", "postgresql":
		return config.StoragePostgres, nil
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// keysToCopy lists every document the engine keeps, records first.
func keysToCopy(skipCache bool) []string {
	keys := []string{app.RecordsStorageKey, twitch.TokenStorageKey, twitch.StatusStorageKey}
	if !skipCache {
		keys = append(keys, app.CacheStorageKeys...)
	}
	return keys
}

func migrate(ctx context.Context, src, dst domain.KVStore, opts options) (summary, error) {
	var result summary
	slog.Info("Starting migration", "dry_run", opts.dryRun)

	// Reading through RecordService rejects a source the engine could not load.
	records, err := app.NewRecordService(src, clockwork.NewRealClock()).List(ctx)
	if err != nil {
		return result, fmt.Errorf("source records unreadable: %w", err)
	}
	result.records = len(records)

	for _, key := range keysToCopy(opts.skipCache) {
		value, ok, err := src.Get(ctx, key)
		if err != nil {
			return result, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !ok {
			slog.Debug("Key absent in source", "key", key)
			result.missing++
			continue
		}

		if !opts.dryRun {
			if err := dst.Set(ctx, key, value); err != nil {
				return result, fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
		slog.Debug("Copied key", "key", key, "bytes", len(value))
		result.copied++
	}

	if opts.dryRun {
		return result, nil
	}

	result.fromVersion, err = app.NewRecordService(dst, clockwork.NewRealClock()).Upgrade(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to upgrade records: %w", err)
	}
	if result.fromVersion != app.RecordStoreVersion {
		slog.Info("Upgraded record store", "from", result.fromVersion, "to", app.RecordStoreVersion)
	}

	return result, nil
}

// sanitizeURL hides the password in a backend URL for logging.
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
