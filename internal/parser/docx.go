package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// docxRows returns the rows of the first table in a .docx price list.
func docxRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := docx.Parse(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	for _, item := range doc.Document.Body.Items {
		tbl, ok := item.(*docx.Table)
		if !ok {
			continue
		}
		var rows [][]string
		for _, tr := range tbl.TableRows {
			row := make([]string, 0, len(tr.TableCells))
			for _, tc := range tr.TableCells {
				row = append(row, docxCellText(tc))
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, nil
}

func docxCellText(tc *docx.WTableCell) string {
	parts := make([]string, 0, len(tc.Paragraphs))
	for _, para := range tc.Paragraphs {
		if t := docxParagraphText(para); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
