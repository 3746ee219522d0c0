package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractTool_InlineHTML(t *testing.T) {
	tool := &ExtractTool{}
	result, err := tool.Execute(context.Background(), map[string]any{
		"content":      "<html><body><p>Inline text</p></body></html>",
		"content_type": "text/html",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]any)
	if !strings.Contains(m["text"].(string), "Inline text") {
		t.Errorf("expected extracted text, got %q", m["text"])
	}
}

func TestExtractTool_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  plain body  "))
	}))
	defer srv.Close()

	tool := &ExtractTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]any)
	if m["text"] != "plain body" {
		t.Errorf("expected trimmed plain body, got %q", m["text"])
	}
}

func TestExtractTool_MissingArgs(t *testing.T) {
	tool := &ExtractTool{}
	_, err := tool.Execute(context.Background(), map[string]any{"content": "text without type"})
	if err == nil {
		t.Fatal("expected error when content_type is missing")
	}
}
