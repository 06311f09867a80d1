// Package report renders a research run as a standalone Markdown document.
package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pltanton/insightloop/internal/history"
	"github.com/pltanton/insightloop/internal/insight"
	"github.com/pltanton/insightloop/internal/research"
)

// Document is everything a report shows.
type Document struct {
	Query           string
	Insights        string
	Links           []string
	ComparisonTable string
	GeneratedAt     time.Time
}

func FromResult(r *research.Result) Document {
	return Document{
		Query:           r.Query,
		Insights:        r.Insights,
		Links:           r.Links,
		ComparisonTable: r.ComparisonTable,
		GeneratedAt:     r.StartedAt.Add(r.Duration),
	}
}

func FromReport(r *history.Report) Document {
	return Document{
		Query:           r.Query,
		Insights:        r.Insights,
		Links:           r.Links,
		ComparisonTable: r.ComparisonTable,
		GeneratedAt:     r.CreatedAt,
	}
}

const methodology = "Web pages were fetched with browser-like request headers. Visible text was extracted " +
	"from each page, cleaned, and summarized by the InsightLoop research agent. Extracted snippets were " +
	"processed to generate insights and comparisons. Full raw data is kept in the report history."

// Markdown renders doc. An empty or unparsable comparison table is tolerated.
func Markdown(doc Document) string {
	var sb strings.Builder
	hasTable := strings.TrimSpace(doc.ComparisonTable) != ""

	sb.WriteString("# InsightLoop.AI Research Report\n\n")
	fmt.Fprintf(&sb, "**Query:** %s\n\n", SafeText(doc.Query))
	if !doc.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "_Generated on: %s_\n\n", doc.GeneratedAt.Local().Format("2006-01-02 15:04"))
	}

	sb.WriteString("## Table of Contents\n\n")
	sb.WriteString("1. Introduction\n2. Key Insights\n")
	if hasTable {
		sb.WriteString("3. Comparison Table\n")
	}
	sb.WriteString("4. Sources\n5. Methodology\n\n")

	sb.WriteString("## 1. Introduction\n\n")
	fmt.Fprintf(&sb, "This report presents the findings from an autonomous web research conducted by "+
		"InsightLoop.AI based on the query: '%s'. The agent crawled relevant web pages, extracted key "+
		"information, and summarized the insights.\n\n", SafeText(doc.Query))

	sb.WriteString("## 2. Key Insights\n\n")
	sb.WriteString(SafeText(strings.TrimSpace(doc.Insights)))
	sb.WriteString("\n\n")

	if hasTable {
		sb.WriteString("## 3. Comparison Table\n\n")
		sb.WriteString(renderTable(doc.ComparisonTable))
		sb.WriteString("\n")
	}

	sb.WriteString("## 4. Sources Used\n\n")
	if len(doc.Links) == 0 {
		sb.WriteString("No sources available.\n")
	}
	for i, link := range doc.Links {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, SafeText(link))
	}
	sb.WriteString("\n")

	sb.WriteString("## 5. Methodology\n\n")
	sb.WriteString(methodology)
	sb.WriteString("\n")
	return sb.String()
}

// Write renders doc to w.
func Write(w io.Writer, doc Document) error {
	_, err := io.WriteString(w, Markdown(doc))
	return err
}

func renderTable(md string) string {
	tbl, err := insight.ParseTable(md)
	if err != nil || len(tbl.Header) == 0 {
		return SafeText(strings.TrimSpace(md)) + "\n"
	}

	var sb strings.Builder
	if tbl.Title != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", SafeText(tbl.Title))
	}
	writeRow(&sb, tbl.Header)
	sep := make([]string, len(tbl.Header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&sb, sep)
	for _, row := range tbl.Rows {
		writeRow(&sb, row)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, cells []string) {
	sb.WriteString("|")
	for _, c := range cells {
		sb.WriteString(" ")
		sb.WriteString(SafeText(c))
		sb.WriteString(" |")
	}
	sb.WriteString("\n")
}

var punctuation = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"…", "...",
	"•", "-",
)

var longToken = regexp.MustCompile(`\S{80,}`)

// SafeText maps typographic punctuation to ASCII, shortens unbroken runs of
// 80 or more characters (URLs, tokens) to 60 plus "...", and drops
// characters outside Latin-1.
func SafeText(s string) string {
	if s == "" {
		return ""
	}
	s = punctuation.Replace(s)
	s = longToken.ReplaceAllStringFunc(s, func(tok string) string {
		return string([]rune(tok)[:60]) + "..."
	})
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return -1
		}
		return r
	}, s)
}
