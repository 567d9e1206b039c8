package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pbt-labs/pbt-ocr/constants"
	"github.com/pbt-labs/pbt-ocr/internal/common"
	"github.com/pbt-labs/pbt-ocr/internal/entity"
)

type fakeReader struct {
	doc    *entity.Document
	pages  []entity.Page
	blocks map[uuid.UUID][]entity.Block
}

func (f *fakeReader) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, common.ErrDocumentNotFound
	}
	return f.doc, nil
}

func (f *fakeReader) ListPages(ctx context.Context, docID uuid.UUID) ([]entity.Page, error) {
	return f.pages, nil
}

func (f *fakeReader) ListBlocks(ctx context.Context, pageID uuid.UUID) ([]entity.Block, error) {
	return f.blocks[pageID], nil
}

func strPtr(s string) *string { return &s }

func fixture() *fakeReader {
	docID := uuid.New()
	p1 := entity.Page{ID: uuid.New(), DocumentID: docID, PageNo: 1}
	p2 := entity.Page{ID: uuid.New(), DocumentID: docID, PageNo: 2}
	return &fakeReader{
		doc:   &entity.Document{ID: docID, Title: "report", Status: constants.StatusCompleted},
		pages: []entity.Page{p1, p2},
		blocks: map[uuid.UUID][]entity.Block{
			p1.ID: {
				{Order: 0, Type: constants.BlockHeader, Text: strPtr("Summary"), Confidence: 0.95},
				{Order: 1, Type: constants.BlockText, Text: strPtr("Revenue grew."), Confidence: 0.9},
				{Order: 2, Type: constants.BlockTable, Table: [][]string{{"Q", "Amount"}, {"Q1", "10"}}, Confidence: 0.95},
			},
			p2.ID: {
				{Order: 0, Type: constants.BlockList, Text: strPtr("one\ntwo"), Confidence: 0.95},
			},
		},
	}
}

func TestExport_Markdown(t *testing.T) {
	r := fixture()
	s := NewService(r, nil)

	res, err := s.Export(context.Background(), r.doc.ID, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	md := string(res.Data)

	for _, want := range []string{"## Summary", "Revenue grew.", "| Q | Amount |", "| --- | --- |", "- one\n- two", "\n---\n"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if res.Filename != "report.md" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestExport_HTML(t *testing.T) {
	r := fixture()
	s := NewService(r, nil)

	res, err := s.Export(context.Background(), r.doc.ID, FormatHTML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	html := string(res.Data)
	if !strings.Contains(html, "<h2>Summary</h2>") || !strings.Contains(html, "<table>") {
		t.Errorf("html = %s", html)
	}
}

func TestExport_JSON(t *testing.T) {
	r := fixture()
	s := NewService(r, nil)

	res, err := s.Export(context.Background(), r.doc.ID, FormatJSON)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var out struct {
		Document struct {
			Title string `json:"title"`
		} `json:"document"`
		Pages []struct {
			PageNo int `json:"page_no"`
			Blocks []struct {
				Type string `json:"block_type"`
			} `json:"blocks"`
		} `json:"pages"`
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if out.Document.Title != "report" || len(out.Pages) != 2 {
		t.Errorf("export = %+v", out)
	}
	if len(out.Pages[0].Blocks) != 3 || out.Pages[0].Blocks[2].Type != "TABLE" {
		t.Errorf("page 1 blocks = %+v", out.Pages[0].Blocks)
	}
}

func TestExport_XLSX(t *testing.T) {
	r := fixture()
	s := NewService(r, nil)

	res, err := s.Export(context.Background(), r.doc.ID, FormatXLSX)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(res.Data, []byte("PK")) {
		t.Errorf("data does not look like an xlsx archive")
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	r := fixture()
	s := NewService(r, nil)
	if _, err := s.Export(context.Background(), r.doc.ID, Format("docx")); err == nil {
		t.Fatal("err = nil, want unsupported format error")
	}
}

func TestExport_MissingDocument(t *testing.T) {
	s := NewService(&fakeReader{}, nil)
	if _, err := s.Export(context.Background(), uuid.New(), FormatJSON); err == nil {
		t.Fatal("err = nil, want not found")
	}
}
