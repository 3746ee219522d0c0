// Package extract converts documents to plain text by MIME type.
// Unsupported types yield an empty string rather than an error so
// callers can treat extraction as best-effort.
package extract

import (
	"io"
	"strings"
)

// Extract reads r and returns a text representation of the content.
// Returns ("", nil) for unsupported content types.
func Extract(contentType string, r io.Reader) (string, error) {
	mime := strings.SplitN(contentType, ";", 2)[0]
	mime = strings.TrimSpace(strings.ToLower(mime))

	switch {
	case mime == "text/html" || mime == "application/xhtml+xml":
		return extractHTML(r)
	case strings.HasPrefix(mime, "text/") || mime == "application/json":
		return extractText(r)
	case mime == "application/pdf":
		return extractPDF(r)
	case mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDOCX(r)
	case mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return extractXLSX(r)
	default:
		return "", nil
	}
}

func extractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
