package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractDOCX pulls paragraph text out of the document part of a DOCX
// archive.
func extractDOCX(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx zip: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxText(rc), nil
	}
	return "", fmt.Errorf("word/document.xml not found in docx")
}

// docxText collects the text runs ("t" elements) of a WordprocessingML
// stream, inserting a newline per paragraph ("p" element).
func docxText(r io.Reader) string {
	var sb strings.Builder
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "t":
			var run struct {
				Text string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&run, &se); err == nil {
				sb.WriteString(run.Text)
			}
		case "p":
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

// extractXLSX renders every sheet as tab-separated rows, with a sheet
// name header when the workbook has more than one sheet.
func extractXLSX(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read xlsx: %w", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	var sb strings.Builder
	for _, sheet := range sheets {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			continue
		}
		if len(sheets) > 1 {
			sb.WriteString("# " + sheet + "\n")
		}
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
