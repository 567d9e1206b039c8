package markdown

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseBlocks_MixedDocument(t *testing.T) {
	md := strings.Join([]string{
		"# Annual Summary",
		"",
		"First paragraph line one.",
		"line two.",
		"",
		"| Item | Amount |",
		"|------|--------|",
		"| Rent | 1200 |",
		"",
		"- first point",
		"- second point",
	}, "\n")

	blocks := ParseBlocks(md)
	if len(blocks) != 4 {
		t.Fatalf("len(blocks) = %d, want 4", len(blocks))
	}

	if blocks[0].Type != "header" || blocks[0].Text != "Annual Summary" {
		t.Errorf("block 0 = %q %q, want header/Annual Summary", blocks[0].Type, blocks[0].Text)
	}
	if blocks[1].Type != "text" || blocks[1].Text != "First paragraph line one.\nline two." {
		t.Errorf("block 1 = %q %q", blocks[1].Type, blocks[1].Text)
	}

	wantTable := [][]string{{"Item", "Amount"}, {"Rent", "1200"}}
	if blocks[2].Type != "table" || !reflect.DeepEqual(blocks[2].Table, wantTable) {
		t.Errorf("block 2 table = %v, want %v", blocks[2].Table, wantTable)
	}
	if blocks[3].Type != "list" || blocks[3].Text != "first point\nsecond point" {
		t.Errorf("block 3 = %q %q", blocks[3].Type, blocks[3].Text)
	}

	for i, b := range blocks {
		if b.ReadingOrder != i {
			t.Errorf("block %d reading order = %d", i, b.ReadingOrder)
		}
		if b.BBox != DefaultBBox {
			t.Errorf("block %d bbox = %v, want default", i, b.BBox)
		}
		if b.Confidence != DefaultConfidence {
			t.Errorf("block %d confidence = %v, want %v", i, b.Confidence, DefaultConfidence)
		}
	}
}

func TestParseBlocks_SeparatorRowsDiscarded(t *testing.T) {
	blocks := ParseBlocks("| a | b |\n| :--- | ---: |\n| 1 | 2 |")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if len(blocks[0].Table) != 2 {
		t.Errorf("table rows = %d, want 2 (separator discarded)", len(blocks[0].Table))
	}
}

func TestParseBlocks_RaggedTablePadded(t *testing.T) {
	blocks := ParseBlocks("| a | b | c |\n| 1 | 2 |")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	want := [][]string{{"a", "b", "c"}, {"1", "2", ""}}
	if !reflect.DeepEqual(blocks[0].Table, want) {
		t.Errorf("table = %v, want %v", blocks[0].Table, want)
	}
}

func TestParseBlocks_ListMarkers(t *testing.T) {
	blocks := ParseBlocks("- dash\n* star\n+ plus")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].Text != "dash\nstar\nplus" {
		t.Errorf("list text = %q", blocks[0].Text)
	}
}

func TestParseBlocks_DashWithoutSpaceIsText(t *testing.T) {
	blocks := ParseBlocks("-not a list")
	if len(blocks) != 1 || blocks[0].Type != "text" {
		t.Fatalf("blocks = %+v, want one text block", blocks)
	}
}

func TestParseBlocks_Empty(t *testing.T) {
	if blocks := ParseBlocks(""); len(blocks) != 0 {
		t.Errorf("len(blocks) = %d, want 0", len(blocks))
	}
	if blocks := ParseBlocks("\n\n\n"); len(blocks) != 0 {
		t.Errorf("len(blocks) = %d, want 0", len(blocks))
	}
}

func TestParseBlocks_HeaderLevelsStripped(t *testing.T) {
	blocks := ParseBlocks("### Deep Section")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].Text != "Deep Section" {
		t.Errorf("header text = %q, want %q", blocks[0].Text, "Deep Section")
	}
}

func TestRenderHTML_Table(t *testing.T) {
	html := RenderHTML("| a |\n| --- |\n| 1 |")
	if !strings.Contains(html, "<table>") {
		t.Errorf("html = %q, want a <table> element", html)
	}
}

func TestRenderHTML_Empty(t *testing.T) {
	if html := RenderHTML(""); html != "" {
		t.Errorf("html = %q, want empty", html)
	}
}
