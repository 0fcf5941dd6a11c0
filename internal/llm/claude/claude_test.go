package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	req := &assist.Request{
		Summary: "Encoded PowerShell on WS-12",
		Artifacts: map[string]string{
			"process": strings.Repeat("x", assist.MaxArtifactChars+50),
			"dns":     "evil.example",
		},
	}
	got := buildPrompt(req)

	if !strings.HasPrefix(got, "Alert: Encoded PowerShell on WS-12\n\nArtifacts:\n") {
		t.Errorf("prompt prefix = %q", got[:60])
	}
	if strings.Index(got, "dns:") > strings.Index(got, "process:") {
		t.Error("artifacts not in name order")
	}
	if !strings.Contains(got, strings.Repeat("x", assist.MaxArtifactChars)+"...[truncated]") {
		t.Error("long artifact not truncated")
	}
	if strings.Contains(got, strings.Repeat("x", assist.MaxArtifactChars+1)) {
		t.Error("artifact exceeds limit")
	}
}

func TestReplyText(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "  first"},
			{Type: "tool_use", Name: "ignored"},
			{Type: "text", Text: "second  "},
		},
	}
	if got := replyText(msg); got != "first\nsecond" {
		t.Errorf("replyText = %q", got)
	}
}

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		verdict    report.Verdict
		action     report.Action
		confidence float64
		rationale  string
	}{
		{
			name:       "plain json",
			text:       `{"verdict":"tp","action":"isolate","confidence":0.91,"rationale":"beaconing"}`,
			verdict:    report.VerdictTruePositive,
			action:     report.ActionIsolate,
			confidence: 0.91,
			rationale:  "beaconing",
		},
		{
			name:       "fenced json with prose",
			text:       "Here you go:\n```json\n{\"verdict\": \"FP\", \"action\": \"monitor\", \"confidence\": 0.3, \"rationale\": \"benign admin\"}\n```",
			verdict:    report.VerdictFalsePositive,
			action:     report.ActionMonitor,
			confidence: 0.3,
			rationale:  "benign admin",
		},
		{
			name:       "confidence clamped",
			text:       `{"verdict":"tp","action":"blockip","confidence":7,"rationale":"r"}`,
			verdict:    report.VerdictTruePositive,
			action:     report.ActionBlockIP,
			confidence: 1,
			rationale:  "r",
		},
		{
			name:       "unknown action is unstructured",
			text:       `{"verdict":"tp","action":"reboot","confidence":0.9}`,
			verdict:    report.VerdictUncertain,
			action:     report.ActionMonitor,
			confidence: unstructuredConfidence,
			rationale:  `{"verdict":"tp","action":"reboot","confidence":0.9}`,
		},
		{
			name:       "free text",
			text:       "Looks like a phishing attempt, monitor the mailbox.",
			verdict:    report.VerdictUncertain,
			action:     report.ActionMonitor,
			confidence: unstructuredConfidence,
			rationale:  "Looks like a phishing attempt, monitor the mailbox.",
		},
		{
			name:       "missing confidence",
			text:       `{"verdict":"uncertain","action":"resetpw","rationale":"creds reused"}`,
			verdict:    report.VerdictUncertain,
			action:     report.ActionResetPassword,
			confidence: unstructuredConfidence,
			rationale:  "creds reused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseReply(tt.text)
			if got.Verdict != tt.verdict || got.Action != tt.action || got.Confidence != tt.confidence || got.Rationale != tt.rationale {
				t.Errorf("parseReply = %+v", got)
			}
			if got.Source != assist.SourceModel {
				t.Errorf("Source = %q", got.Source)
			}
		})
	}
}

func TestSuggest_AgainstFakeAPI(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotBody map[string]any
		gotKey  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(b, &gotBody)
		gotKey = r.Header.Get("X-Api-Key")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"verdict\":\"tp\",\"action\":\"isolate\",\"confidence\":0.88,\"rationale\":\"downloader\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 30}
		}`)
	}))
	defer srv.Close()

	var calls []*CallEvent
	s := New("test-key", "claude-test", Hooks{OnCall: func(e *CallEvent) { calls = append(calls, e) }},
		option.WithBaseURL(srv.URL))

	got, err := s.Suggest(context.Background(), &assist.Request{
		AlertID:   "A1",
		Summary:   "PowerShell",
		Artifacts: map[string]string{"cmd": "iex (downloadstring)"},
	})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.Verdict != report.VerdictTruePositive || got.Confidence != 0.88 {
		t.Errorf("suggestion = %+v", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotBody["model"] != "claude-test" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if mt, _ := gotBody["max_tokens"].(float64); mt != ResponseTokens {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
	if len(calls) != 1 || calls[0].InputTokens != 120 || calls[0].OutputTokens != 30 || calls[0].Err != nil {
		t.Errorf("call events = %+v", calls)
	}
}

func TestSuggest_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`)
	}))
	defer srv.Close()

	var sawErr bool
	s := New("k", "", Hooks{OnCall: func(e *CallEvent) { sawErr = e.Err != nil }}, option.WithBaseURL(srv.URL))
	if _, err := s.Suggest(context.Background(), &assist.Request{AlertID: "A"}); err == nil {
		t.Fatal("expected error")
	}
	if !sawErr {
		t.Error("hook did not see the error")
	}
}
