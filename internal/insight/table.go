package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const tablePrompt = `
You are InsightLoop.AI, an autonomous web research assistant.

User query:
%s

Web content (raw extracted text from multiple pages):
%s

Your task:
- If the query is about comparing companies, apps, tools, products, or failures,
  generate a clear, professional markdown table with a title.
- Columns should be relevant (e.g., Name, Category, Features, Pros, Cons, Notes).
- Use short, crisp phrases in each cell.
- Make the table visually appealing with proper alignment.
- Output ONLY the markdown table with a brief title.
- If you cannot create a table, output an empty string.
`

// TableSynthesizer asks the backend once for a markdown comparison table.
// Anything that is not a table yields "".
type TableSynthesizer struct {
	opts Options
}

func NewTableSynthesizer(opts Options) *TableSynthesizer {
	opts.defaults()
	return &TableSynthesizer{opts: opts}
}

func (t *TableSynthesizer) Synthesize(ctx context.Context, query string, snippets []string) (table string) {
	defer func() {
		if r := recover(); r != nil {
			t.opts.Logger.Error("table synthesis panicked", "panic", r)
			table = ""
		}
	}()

	if t.opts.Backend == nil {
		return ""
	}

	prompt := fmt.Sprintf(tablePrompt, query, combine(snippets, t.opts.MaxCombinedChars))
	out, err := t.opts.Backend.Generate(ctx, t.opts.Model, prompt)
	if err != nil {
		t.opts.Logger.Warn("table synthesis failed", "error", err)
		return ""
	}

	out = strings.TrimSpace(out)
	if !strings.Contains(out, "|") {
		t.opts.Logger.Debug("backend answer is not a table", "chars", len(out))
		return ""
	}
	return out
}

// ErrRaggedTable is returned by ParseTable when rows disagree on width.
var ErrRaggedTable = errors.New("table rows have different column counts")

// Table is a parsed markdown table. Title holds any non-table line before it.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// ParseTable reads the first markdown table in md. Separator rows are
// dropped. An input without table lines yields an empty Table.
func ParseTable(md string) (Table, error) {
	var tbl Table
	var lines [][]string
	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.Contains(line, "|") {
			if len(lines) > 0 {
				break
			}
			if line != "" && tbl.Title == "" {
				tbl.Title = strings.TrimSpace(strings.TrimLeft(line, "#*"))
				tbl.Title = strings.TrimSpace(strings.TrimRight(tbl.Title, "*"))
			}
			continue
		}
		row := splitRow(line)
		if isSeparator(row) {
			continue
		}
		lines = append(lines, row)
	}

	if len(lines) == 0 {
		return tbl, nil
	}
	tbl.Header = lines[0]
	for _, row := range lines[1:] {
		if len(row) != len(tbl.Header) {
			return Table{}, fmt.Errorf("%w: header has %d, row has %d", ErrRaggedTable, len(tbl.Header), len(row))
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// isSeparator reports whether every cell is an alignment marker like ---, :--, --:.
func isSeparator(cells []string) bool {
	for _, c := range cells {
		if !strings.Contains(c, "-") || strings.Trim(c, "-:") != "" {
			return false
		}
	}
	return true
}

func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
