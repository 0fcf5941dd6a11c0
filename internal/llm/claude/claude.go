// Package claude implements assist.Suggester on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/triagedesk/internal/assist"
	"github.com/linnemanlabs/triagedesk/internal/report"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	// ResponseTokens bounds the reply length.
	ResponseTokens = 300

	// unstructuredConfidence is assigned to replies that are not the requested JSON.
	unstructuredConfidence = 0.6
)

const systemPrompt = `You are an expert SOC triage assistant. Given an alert summary and its artifacts, ` +
	`reply with a single JSON object and nothing else: ` +
	`{"verdict": "tp"|"fp"|"uncertain", "action": "isolate"|"blockip"|"monitor"|"resetpw", ` +
	`"confidence": number between 0 and 1, "rationale": short explanation}.`

// CallEvent describes one Messages API call.
type CallEvent struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	Err          error
}

// Hooks receive API call events. Nil hooks are skipped.
type Hooks struct {
	OnCall func(e *CallEvent)
}

// Suggester asks Claude for a triage suggestion.
type Suggester struct {
	client anthropic.Client
	model  string
	hooks  Hooks
}

// New returns a Suggester. SDK retries are disabled; the assist queue owns the
// retry policy. Extra options are applied after the API key.
func New(apiKey, model string, hooks Hooks, opts ...option.RequestOption) *Suggester {
	if model == "" {
		model = DefaultModel
	}
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	return &Suggester{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
		hooks:  hooks,
	}
}

// Suggest implements assist.Suggester.
func (s *Suggester) Suggest(ctx context.Context, req *assist.Request) (*assist.Suggestion, error) {
	start := time.Now()
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   ResponseTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})

	ev := &CallEvent{Model: s.model, Duration: time.Since(start), Err: err}
	if msg != nil {
		ev.InputTokens = msg.Usage.InputTokens
		ev.OutputTokens = msg.Usage.OutputTokens
	}
	if s.hooks.OnCall != nil {
		s.hooks.OnCall(ev)
	}
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	return parseReply(replyText(msg)), nil
}

// buildPrompt lists the summary and each artifact, cut to assist.MaxArtifactChars.
func buildPrompt(req *assist.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert: %s\n\nArtifacts:\n", req.Summary)
	for i, name := range req.ArtifactNames() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:\n%s", name, assist.Truncate(req.Artifacts[name], assist.MaxArtifactChars))
	}
	return b.String()
}

func replyText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// parseReply reads the JSON object in text. Anything else becomes an
// uncertain/monitor suggestion carrying the text as rationale.
func parseReply(text string) *assist.Suggestion {
	unstructured := &assist.Suggestion{
		Verdict:    report.VerdictUncertain,
		Action:     report.ActionMonitor,
		Confidence: unstructuredConfidence,
		Rationale:  text,
		Source:     assist.SourceModel,
	}

	obj := extractObject(text)
	if obj == "" || !gjson.Valid(obj) {
		return unstructured
	}
	res := gjson.Parse(obj)

	verdict := report.Verdict(strings.ToLower(res.Get("verdict").String()))
	action := report.Action(strings.ToLower(res.Get("action").String()))
	if !verdict.Valid() || !action.Valid() {
		return unstructured
	}

	conf := res.Get("confidence")
	confidence := unstructuredConfidence
	if conf.Exists() {
		confidence = min(max(conf.Float(), 0), 1)
	}

	rationale := res.Get("rationale").String()
	if rationale == "" {
		rationale = text
	}
	return &assist.Suggestion{
		Verdict:    verdict,
		Action:     action,
		Confidence: confidence,
		Rationale:  rationale,
		Source:     assist.SourceModel,
	}
}

// extractObject returns the outermost {...} span of text, which drops code
// fences and surrounding prose.
func extractObject(text string) string {
	i := strings.IndexByte(text, '{')
	j := strings.LastIndexByte(text, '}')
	if i < 0 || j <= i {
		return ""
	}
	return text[i : j+1]
}
