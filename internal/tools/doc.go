package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minseok/weft/internal/extract"
)

// maxDocumentBytes caps how much of a remote document is read.
const maxDocumentBytes = 10 * 1024 * 1024

// ExtractTool converts a document to plain text. It either fetches a
// URL (content type taken from the response) or works on inline content
// with an explicit content_type.
type ExtractTool struct{}

func (e *ExtractTool) Name() string { return "doc.extract" }

func (e *ExtractTool) Description() string {
	return "Extract plain text from a document (PDF, XLSX, DOCX, HTML, or plain text), given either a URL or inline content."
}

func (e *ExtractTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL of the document to fetch and extract",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Inline document content; requires content_type",
			},
			"content_type": map[string]any{
				"type":        "string",
				"description": "MIME type of the inline content, e.g. text/html",
			},
		},
	}
}

func (e *ExtractTool) Execute(ctx context.Context, input any) (any, error) {
	args, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid input: expected object")
	}

	if url, _ := args["url"].(string); url != "" {
		return e.extractURL(ctx, url)
	}

	content, _ := args["content"].(string)
	contentType, _ := args["content_type"].(string)
	if content == "" || contentType == "" {
		return nil, fmt.Errorf("either url or content with content_type is required")
	}
	text, err := extract.Extract(contentType, strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return map[string]any{"text": text, "content_type": contentType}, nil
}

func (e *ExtractTool) extractURL(ctx context.Context, url string) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "weft/1.0 (document reader)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	text, err := extract.Extract(contentType, io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	return map[string]any{"text": text, "content_type": contentType, "url": url}, nil
}
