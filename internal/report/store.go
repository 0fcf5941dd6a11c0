package report

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the persistence interface for triage reports. Reports are keyed by
// alert id and the last Save wins.
type Store interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, alertID string) (*Report, bool, error)
	// List returns every report, newest first.
	List(ctx context.Context) ([]Report, error)
}

// CheckID rejects alert ids that cannot safely name a file.
func CheckID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) ||
		filepath.Base(id) != id {
		return ErrInvalidID
	}
	return nil
}

// SortNewestFirst orders reports by timestamp, descending. Ties keep alert id order.
func SortNewestFirst(rs []Report) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Timestamp != rs[j].Timestamp {
			return rs[i].Timestamp > rs[j].Timestamp
		}
		return rs[i].AlertID < rs[j].AlertID
	})
}
