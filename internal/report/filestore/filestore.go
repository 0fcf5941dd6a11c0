// Package filestore persists each triage report as <alert_id>_report.json in a
// data directory.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/jsonfile"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

// Suffix names report files: <alert_id> + Suffix.
const Suffix = "_report.json"

// Store reads and writes report files under dir.
type Store struct {
	dir    string
	logger log.Logger
}

// New returns a Store rooted at dir.
func New(dir string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) path(alertID string) (string, error) {
	if err := report.CheckID(alertID); err != nil {
		return "", fmt.Errorf("%w: %q", err, alertID)
	}
	return filepath.Join(s.dir, alertID+Suffix), nil
}

// Save writes r atomically, replacing any previous report for the same alert.
// Concurrent saves for one alert race, the last rename wins.
func (s *Store) Save(_ context.Context, r *report.Report) error {
	p, err := s.path(r.AlertID)
	if err != nil {
		return err
	}
	if err := jsonfile.WriteAtomic(p, r); err != nil {
		return fmt.Errorf("save report %s: %w", r.AlertID, err)
	}
	return nil
}

// Get reads the report for alertID.
func (s *Store) Get(_ context.Context, alertID string) (*report.Report, bool, error) {
	p, err := s.path(alertID)
	if err != nil {
		return nil, false, err
	}
	r, err := readReport(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return r, true, nil
}

// List reads every report file, newest first. Unreadable or malformed files
// are skipped.
func (s *Store) List(ctx context.Context) ([]report.Report, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []report.Report{}, nil
		}
		return nil, fmt.Errorf("list reports: %w", err)
	}

	out := []report.Report{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Suffix) || strings.HasPrefix(name, ".") {
			continue
		}
		r, err := readReport(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable report", "file", name, "error", err)
			continue
		}
		out = append(out, *r)
	}
	report.SortNewestFirst(out)
	return out, nil
}

func readReport(path string) (*report.Report, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path built from a checked id or a directory listing
	if err != nil {
		return nil, err
	}
	var r report.Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}
