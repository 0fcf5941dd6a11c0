package audit

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/linnemanlabs/triagedesk/internal/report"
)

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"alert_id", "analyst", "verdict", "action", "notes",
	"ai_verdict", "ai_action", "ai_confidence", "ai_rationale",
	"ai_accepted", "timestamp",
}

// WriteCSV writes one row per report after the header. Line breaks in notes
// and rationale become spaces. Fields containing a comma, space, quote or line
// break are quoted with inner quotes doubled.
func WriteCSV(w io.Writer, reports []report.Report) error {
	bw := bufio.NewWriter(w)
	writeRow(bw, CSVHeader)
	for i := range reports {
		writeRow(bw, csvRow(&reports[i]))
	}
	return bw.Flush()
}

func csvRow(r *report.Report) []string {
	var verdict, action, confidence, rationale string
	if s := r.AISuggestion; s != nil {
		verdict = string(s.Verdict)
		action = string(s.Action)
		confidence = strconv.FormatFloat(s.Confidence, 'f', -1, 64)
		rationale = flatten(s.Rationale)
	}
	return []string{
		r.AlertID,
		r.Analyst,
		string(r.Verdict),
		string(r.Action),
		flatten(r.Notes),
		verdict,
		action,
		confidence,
		rationale,
		strconv.FormatBool(r.AIAccepted),
		r.Timestamp,
	}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	return lineBreaks.Replace(s)
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(quote(f))
	}
	w.WriteByte('\n')
}

func quote(f string) string {
	if !strings.ContainsAny(f, ", \"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}
