// Package extract turns fetched markup into bounded, readable text.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/logger"
	"github.com/pltanton/insightloop/internal/research"
)

const (
	// DefaultMaxChars bounds every snippet.
	DefaultMaxChars = 2000

	FormatText     = "text"
	FormatMarkdown = "markdown"

	// ErrorPrefix starts the reason of every failed extraction.
	ErrorPrefix = "Error during extraction: "
)

type Options struct {
	MaxChars int
	Format   string
	Logger   *slog.Logger
}

// Extractor strips non-content elements and keeps the first MaxChars
// characters of visible text.
type Extractor struct {
	maxChars int
	format   string
	md       *converter.Converter
	policy   *bluemonday.Policy
	log      *slog.Logger
}

func New(opts Options) *Extractor {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	e := &Extractor{maxChars: opts.MaxChars, format: opts.Format, log: opts.Logger}
	if opts.Format == FormatMarkdown {
		e.md = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
		e.policy = bluemonday.UGCPolicy()
	}
	return e
}

// FromConfig builds an Extractor from the extract section.
func FromConfig(cfg config.ExtractConfig, log *slog.Logger) *Extractor {
	return New(Options{MaxChars: cfg.MaxChars, Format: cfg.Format, Logger: log})
}

// Extract returns the readable text of markup, or a failed outcome when the
// document cannot be parsed.
func (e *Extractor) Extract(markup string) (out research.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = research.Failed(fmt.Sprintf("%s%v", ErrorPrefix, r))
		}
	}()

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return research.Failed(ErrorPrefix + err.Error())
	}
	prune(doc)

	if e.md != nil {
		if text, ok := e.markdown(doc); ok {
			return research.Ok(truncate(text, e.maxChars))
		}
	}
	return research.Ok(truncate(visibleText(doc), e.maxChars))
}

func (e *Extractor) markdown(doc *html.Node) (string, bool) {
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		e.log.Debug("render pruned document failed", "error", err)
		return "", false
	}
	md, err := e.md.ConvertString(e.policy.Sanitize(buf.String()))
	if err != nil {
		e.log.Debug("markdown conversion failed, using plain text", "error", err)
		return "", false
	}
	md = strings.TrimSpace(md)
	return md, md != ""
}

func skipped(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Iframe:
		return true
	}
	return false
}

// prune removes non-content nodes in place.
func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if skipped(c) {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

// visibleText joins text nodes with single spaces.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, word := range strings.Fields(n.Data) {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
