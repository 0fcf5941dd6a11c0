// Seed loads an alert collection from a JSON file into the configured alert store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/triagedesk/internal/alert"
	alertfile "github.com/linnemanlabs/triagedesk/internal/alert/filestore"
	alertpg "github.com/linnemanlabs/triagedesk/internal/alert/pgstore"
	"github.com/linnemanlabs/triagedesk/internal/postgres"
)

const appName = "triagedesk"
const component = "seed"

// importer is implemented by the alert stores that can be seeded.
type importer interface {
	Import(ctx context.Context, alerts []alert.Alert) error
}

// replacer adapts the file store, whose seed operation rewrites the collection.
type replacer struct{ s *alertfile.Store }

func (r replacer) Import(ctx context.Context, alerts []alert.Alert) error {
	return r.s.Replace(ctx, alerts)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		logCfg      log.Config
		in          string
		alertsFile  string
		databaseURL string
	)
	logCfg.RegisterFlags(flag.CommandLine)
	flag.StringVar(&in, "in", "", "alert collection JSON file to load (required)")
	flag.StringVar(&alertsFile, "alerts-file", "data/alerts.json", "alert collection file to write when no database is configured")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (empty = write alerts-file)")
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "TRIAGEDESK_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := logCfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if in == "" {
		return errors.New("-in is required")
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	alerts, err := loadAlerts(in)
	if err != nil {
		return err
	}

	var dst importer
	if databaseURL != "" {
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		s, err := alertpg.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("alert pgstore init: %w", err)
		}
		dst = s
	} else {
		dst = replacer{alertfile.New(alertsFile)}
	}

	if err := seed(ctx, dst, alerts); err != nil {
		return err
	}
	L.Info(ctx, "seeded alerts", "count", len(alerts), "source", in, "postgres", databaseURL != "")
	return nil
}

// loadAlerts decodes the collection at path and rejects blank or repeated ids.
func loadAlerts(path string) ([]alert.Alert, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: operator supplied seed file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var alerts []alert.Alert
	if err := json.Unmarshal(b, &alerts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(alerts))
	for i, a := range alerts {
		if a.ID == "" {
			return nil, fmt.Errorf("alert %d has no id", i)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("duplicate alert id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return alerts, nil
}

func seed(ctx context.Context, dst importer, alerts []alert.Alert) error {
	if err := dst.Import(ctx, alerts); err != nil {
		return fmt.Errorf("import alerts: %w", err)
	}
	return nil
}
