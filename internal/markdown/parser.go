// Package markdown segments engine-produced Markdown into layout blocks and
// renders Markdown to HTML. The segmentation rules form a deliberately small
// grammar over line shapes rather than a full Markdown parse: vision-model
// output is not guaranteed to be well-formed CommonMark, so the parser only
// keys on unambiguous cues (leading #, pipe-delimited rows, list bullets,
// blank-line paragraph breaks).
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pbt-labs/pbt-ocr/internal/engine"
)

// Blocks parsed from Markdown carry no geometry; they get a full-page
// default box and a fixed high confidence.
var (
	DefaultBBox       = [4]float64{0.05, 0.05, 0.95, 0.95}
	DefaultConfidence = 0.95
)

// Separator rows inside a pipe table, e.g. |---|:---:|.
var tableSeparatorRe = regexp.MustCompile(`^\|[\s\-:|]+\|$`)

var renderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParseBlocks segments md into blocks. Rules, applied per line:
//
//	#...      header (leading #s and space stripped)
//	|...|     table row; contiguous rows form one table, dash separator
//	          rows are discarded, cells split on | and trimmed
//	- * +     list item (marker stripped); contiguous items form one list
//	blank     paragraph break
//	else      text, accumulated until the next break
//
// Reading order is the block's position in the stream.
func ParseBlocks(md string) []engine.Block {
	var blocks []engine.Block
	var para []string
	var tableRows [][]string
	var listItems []string

	emit := func(b engine.Block) {
		b.BBox = DefaultBBox
		b.Confidence = DefaultConfidence
		b.ReadingOrder = len(blocks)
		blocks = append(blocks, b)
	}
	flushPara := func() {
		if len(para) > 0 {
			emit(engine.Block{Type: "text", Text: strings.Join(para, "\n")})
			para = nil
		}
	}
	flushTable := func() {
		if len(tableRows) > 0 {
			emit(engine.Block{Type: "table", Table: rectangular(tableRows)})
			tableRows = nil
		}
	}
	flushList := func() {
		if len(listItems) > 0 {
			emit(engine.Block{Type: "list", Text: strings.Join(listItems, "\n")})
			listItems = nil
		}
	}
	flushAll := func() {
		flushPara()
		flushTable()
		flushList()
	}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flushAll()
		case strings.HasPrefix(line, "#"):
			flushAll()
			emit(engine.Block{Type: "header", Text: stripHeaderMarker(line)})
		case isTableRow(line):
			flushPara()
			flushList()
			if !tableSeparatorRe.MatchString(line) {
				tableRows = append(tableRows, splitTableRow(line))
			}
		case isListItem(line):
			flushPara()
			flushTable()
			listItems = append(listItems, line[2:])
		default:
			flushTable()
			flushList()
			para = append(para, line)
		}
	}
	flushAll()
	return blocks
}

// FromLines joins recognizer lines into a Markdown document, one paragraph
// per line.
func FromLines(lines []string) string {
	return strings.Join(lines, "\n\n")
}

// RenderHTML converts Markdown to HTML with GFM tables enabled. Rendering is
// best-effort; on failure it returns an empty string.
func RenderHTML(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func stripHeaderMarker(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

func isTableRow(line string) bool {
	return len(line) >= 2 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

func isListItem(line string) bool {
	if len(line) < 2 || line[1] != ' ' {
		return false
	}
	switch line[0] {
	case '-', '*', '+':
		return true
	}
	return false
}

func splitTableRow(line string) []string {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// rectangular pads ragged rows with empty cells so every row has the width
// of the widest one.
func rectangular(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) == width {
			out[i] = r
			continue
		}
		padded := make([]string, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}
