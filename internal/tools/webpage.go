package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// maxTextOutput caps the text returned from a fetched page.
const maxTextOutput = 100 * 1024

// WebpageTool fetches a URL and returns its title, readable text, and
// outgoing links. An optional CSS selector narrows extraction to the
// matching elements.
type WebpageTool struct{}

func (w *WebpageTool) Name() string { return "webpage.fetch" }

func (w *WebpageTool) Description() string {
	return "Fetch a webpage and return its title, readable text, and links. An optional CSS selector restricts extraction to matching elements."
}

func (w *WebpageTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "Optional CSS selector; only matching elements are extracted",
			},
			"attribute": map[string]any{
				"type":        "string",
				"description": "With selector: return this attribute instead of element text",
			},
			"limit": map[string]any{
				"type":        "number",
				"description": "With selector: maximum number of matches to return (default 30)",
			},
		},
		"required": []any{"url"},
	}
}

func (w *WebpageTool) Execute(ctx context.Context, input any) (any, error) {
	args, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid input: expected object")
	}
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "weft/1.0 (webpage reader)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	selector, _ := args["selector"].(string)
	if selector != "" {
		return w.selectMatches(doc, url, title, selector, args)
	}

	doc.Find("script, style, noscript").Remove()
	text := collapseSpace(doc.Find("body").Text())
	if len(text) > maxTextOutput {
		text = text[:maxTextOutput] + " [truncated]"
	}

	var links []string
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 50 {
			return false
		}
		if href, ok := s.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
		return true
	})

	return map[string]any{
		"url":   url,
		"title": title,
		"text":  text,
		"links": links,
	}, nil
}

func (w *WebpageTool) selectMatches(doc *goquery.Document, url, title, selector string, args map[string]any) (any, error) {
	limit := 30
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	attr, _ := args["attribute"].(string)

	var matches []string
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		var val string
		if attr != "" {
			val, _ = s.Attr(attr)
		} else {
			val = collapseSpace(s.Text())
		}
		if val != "" {
			matches = append(matches, val)
		}
		return true
	})

	return map[string]any{
		"url":     url,
		"title":   title,
		"matches": matches,
	}, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
