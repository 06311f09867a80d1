package research

import (
	"errors"
	"time"
)

// ErrEmptyQuery is returned by Run when the query is blank after trimming.
var ErrEmptyQuery = errors.New("research: query is empty")

// StatusSuccess is the only status a run reports. Degraded data shows up as
// failed outcomes and fallback insights, never as a failed run.
const StatusSuccess = "success"

// Outcome is the result of one fetch or extraction: either content or the
// reason it could not be produced.
type Outcome struct {
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Ok wraps successfully produced content.
func Ok(content string) Outcome {
	return Outcome{Content: content}
}

// Failed records why content could not be produced. The reason is a
// human-readable line such as "Error fetching https://a.com: timeout".
func Failed(reason string) Outcome {
	if reason == "" {
		reason = "unknown error"
	}
	return Outcome{Reason: reason}
}

// Failed reports whether the outcome carries a failure reason.
func (o Outcome) Failed() bool {
	return o.Reason != ""
}

// String returns the content, or the failure reason for a failed outcome.
func (o Outcome) String() string {
	if o.Failed() {
		return o.Reason
	}
	return o.Content
}

// PageRecord is the raw markup fetched for one link.
type PageRecord struct {
	URL string  `json:"url"`
	Raw Outcome `json:"raw"`
}

// ExtractedItem is the readable text extracted from one page.
type ExtractedItem struct {
	URL  string  `json:"url"`
	Text Outcome `json:"text"`
}

// Result is the terminal artifact of one pipeline run. Callers read it but
// must not modify it.
type Result struct {
	RunID           string          `json:"run_id"`
	Status          string          `json:"status"`
	Query           string          `json:"query"`
	Steps           []string        `json:"steps"`
	Links           []string        `json:"links"`
	Pages           []PageRecord    `json:"-"`
	Extracted       []ExtractedItem `json:"extracted"`
	Insights        string          `json:"insights"`
	ComparisonTable string          `json:"comparison_table"`
	StartedAt       time.Time       `json:"started_at"`
	Duration        time.Duration   `json:"duration"`
}

// Snippets returns the texts of successfully extracted items, in link order.
func (r *Result) Snippets() []string {
	return okTexts(r.Extracted)
}

func okTexts(items []ExtractedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Text.Failed() {
			continue
		}
		out = append(out, it.Text.Content)
	}
	return out
}
