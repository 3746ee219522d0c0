package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebpageTool_BasicHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Test Page</title></head><body><h1>Hello</h1><p>World</p><a href="/next">next</a></body></html>`))
	}))
	defer srv.Close()

	tool := &WebpageTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	m := result.(map[string]any)
	if m["title"] != "Test Page" {
		t.Errorf("expected title 'Test Page', got %v", m["title"])
	}
	text := m["text"].(string)
	if !strings.Contains(text, "Hello") || !strings.Contains(text, "World") {
		t.Errorf("expected text to contain 'Hello' and 'World', got %q", text)
	}
	links := m["links"].([]string)
	if len(links) != 1 || links[0] != "/next" {
		t.Errorf("expected links [/next], got %v", links)
	}
}

func TestWebpageTool_StripsScriptAndStyle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><script>alert('x')</script><style>body{}</style><p>Content</p></body></html>`))
	}))
	defer srv.Close()

	tool := &WebpageTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	m := result.(map[string]any)
	text := m["text"].(string)
	if strings.Contains(text, "alert") || strings.Contains(text, "body{}") {
		t.Errorf("expected script/style content to be stripped, got %q", text)
	}
	if !strings.Contains(text, "Content") {
		t.Errorf("expected 'Content' in text, got %q", text)
	}
}

func TestWebpageTool_Selector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<ul><li class="item">one</li><li class="item">two</li><li class="item">three</li></ul>
		</body></html>`))
	}))
	defer srv.Close()

	tool := &WebpageTool{}
	result, err := tool.Execute(context.Background(), map[string]any{
		"url":      srv.URL,
		"selector": "li.item",
		"limit":    float64(2),
	})
	if err != nil {
		t.Fatal(err)
	}

	m := result.(map[string]any)
	matches := m["matches"].([]string)
	if len(matches) != 2 || matches[0] != "one" || matches[1] != "two" {
		t.Errorf("expected matches [one two], got %v", matches)
	}
}

func TestWebpageTool_SelectorAttribute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a class="ref" href="https://example.com/a">A</a><a class="ref" href="https://example.com/b">B</a></body></html>`))
	}))
	defer srv.Close()

	tool := &WebpageTool{}
	result, err := tool.Execute(context.Background(), map[string]any{
		"url":       srv.URL,
		"selector":  "a.ref",
		"attribute": "href",
	})
	if err != nil {
		t.Fatal(err)
	}

	m := result.(map[string]any)
	matches := m["matches"].([]string)
	if len(matches) != 2 || matches[0] != "https://example.com/a" {
		t.Errorf("expected href matches, got %v", matches)
	}
}

func TestWebpageTool_MissingURL(t *testing.T) {
	tool := &WebpageTool{}
	_, err := tool.Execute(context.Background(), map[string]any{})
	if err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestWebpageTool_HTTP404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	tool := &WebpageTool{}
	_, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err == nil {
		t.Error("expected error for 404 response")
	}
}
