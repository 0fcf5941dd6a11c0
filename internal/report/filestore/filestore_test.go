package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

func sample(id, ts string) *report.Report {
	return &report.Report{
		AlertID:   id,
		Analyst:   "alice",
		Verdict:   report.VerdictTruePositive,
		Action:    report.ActionIsolate,
		Notes:     "host beaconing",
		Timestamp: ts,
	}
}

func TestSave_WritesKeyedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, log.Nop())
	r := sample("A1", "2025-01-01T00:00:00.000000Z")
	r.AISuggestion = &report.Suggestion{Verdict: report.VerdictTruePositive, Action: report.ActionIsolate, Confidence: 0.93, TaskID: "t-1"}

	if err := s.Save(context.Background(), r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "A1_report.json"))
	if err != nil {
		t.Fatalf("read report file: %v", err)
	}
	var got report.Report
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.AISuggestion == nil || got.AISuggestion.TaskID != "t-1" {
		t.Errorf("suggestion = %+v", got.AISuggestion)
	}
}

func TestSave_NullSuggestion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, log.Nop())
	if err := s.Save(context.Background(), sample("A1", "t")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var raw map[string]json.RawMessage
	b, _ := os.ReadFile(filepath.Join(dir, "A1_report.json"))
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["ai_suggestion"]) != "null" {
		t.Errorf("ai_suggestion = %s, want null", raw["ai_suggestion"])
	}
}

func TestSave_LastWriteWins(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), log.Nop())
	ctx := context.Background()

	first := sample("A1", "2025-01-01T00:00:00.000000Z")
	second := sample("A1", "2025-01-02T00:00:00.000000Z")
	second.Verdict = report.VerdictFalsePositive

	for _, r := range []*report.Report{first, second} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, ok, err := s.Get(ctx, "A1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Verdict != report.VerdictFalsePositive {
		t.Errorf("Verdict = %q, want fp", got.Verdict)
	}

	all, _ := s.List(ctx)
	if len(all) != 1 {
		t.Errorf("List len = %d, want 1", len(all))
	}
}

func TestSave_RejectsTraversal(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), log.Nop())
	err := s.Save(context.Background(), sample("../escape", "t"))
	if !errors.Is(err, report.ErrInvalidID) {
		t.Fatalf("err = %v, want ErrInvalidID", err)
	}
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), log.Nop())
	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false")
	}
}

func TestList_SkipsMalformedAndSortsNewestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := New(dir, log.Nop())
	ctx := context.Background()

	for _, r := range []*report.Report{
		sample("old", "2025-01-01T00:00:00.000000Z"),
		sample("new", "2025-03-01T00:00:00.000000Z"),
		sample("mid", "2025-02-01T00:00:00.000000Z"),
	} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken_report.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alerts.json"), []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].AlertID != "new" || all[1].AlertID != "mid" || all[2].AlertID != "old" {
		t.Errorf("order = %s %s %s", all[0].AlertID, all[1].AlertID, all[2].AlertID)
	}
}

func TestList_MissingDir(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "absent"), log.Nop())
	all, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("len = %d, want 0", len(all))
	}
}
