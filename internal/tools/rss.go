package tools

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

// RSSTool fetches and parses RSS, Atom, or JSON feeds. Multiple feeds
// are fetched concurrently and merged newest first; a feed that fails
// reports its error inline without failing the rest.
type RSSTool struct{}

func (r *RSSTool) Name() string { return "rss.read" }

func (r *RSSTool) Description() string {
	return "Fetch and parse RSS, Atom, or JSON feeds. Returns items with title, link, published date, summary, and author. Multiple feeds are fetched concurrently and merged newest first."
}

func (r *RSSTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL of the feed to fetch",
			},
			"urls": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Feed URLs fetched concurrently; items are merged newest first",
			},
			"max_items": map[string]any{
				"type":        "number",
				"description": "Maximum number of items to return (default: all)",
			},
			"since": map[string]any{
				"type":        "string",
				"description": "Only return items published after this RFC3339 timestamp",
			},
		},
	}
}

func (r *RSSTool) Execute(ctx context.Context, input any) (any, error) {
	args, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid input: expected object")
	}

	var urls []string
	if u, _ := args["url"].(string); u != "" {
		urls = append(urls, u)
	}
	if raw, ok := args["urls"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("url or urls is required")
	}

	maxItems := 0
	if v, ok := args["max_items"].(float64); ok && v > 0 {
		maxItems = int(v)
	}
	var since time.Time
	if v, ok := args["since"].(string); ok && v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid since timestamp (use RFC3339): %w", err)
		}
		since = parsed
	}

	if len(urls) == 1 {
		return r.fetchFeed(ctx, urls[0], maxItems, since)
	}
	return r.fetchFeeds(ctx, urls, maxItems, since)
}

// fetchFeeds pulls every feed in parallel. Partial failure: a broken
// feed is reported in its "feeds" entry, the merge carries on.
func (r *RSSTool) fetchFeeds(ctx context.Context, urls []string, maxItems int, since time.Time) (any, error) {
	feeds := make([]map[string]any, len(urls))
	g, gctx := errgroup.WithContext(ctx)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := r.fetchFeed(gctx, u, maxItems, since)
			if err != nil {
				feeds[i] = map[string]any{"url": u, "error": err.Error()}
				return nil
			}
			out := res.(map[string]any)
			out["url"] = u
			feeds[i] = out
			return nil
		})
	}
	_ = g.Wait() // errors are embedded per feed, not returned

	var merged []map[string]any
	for _, f := range feeds {
		if items, ok := f["items"].([]map[string]any); ok {
			merged = append(merged, items...)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return publishedTime(merged[i]).After(publishedTime(merged[j]))
	})
	if maxItems > 0 && len(merged) > maxItems {
		merged = merged[:maxItems]
	}

	return map[string]any{
		"feeds":      feeds,
		"items":      merged,
		"item_count": len(merged),
	}, nil
}

func publishedTime(item map[string]any) time.Time {
	s, _ := item["published"].(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r *RSSTool) fetchFeed(ctx context.Context, url string, maxItems int, since time.Time) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	feed, err := parser.ParseURLWithContext(url, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}

	var items []map[string]any
	for _, item := range feed.Items {
		// With since set, items without a parseable date are excluded.
		if !since.IsZero() && (item.PublishedParsed == nil || item.PublishedParsed.Before(since)) {
			continue
		}
		published := item.Published
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format(time.RFC3339)
		}
		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}
		items = append(items, map[string]any{
			"title":     item.Title,
			"link":      item.Link,
			"published": published,
			"summary":   item.Description,
			"author":    author,
		})
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}

	return map[string]any{
		"feed_title": feed.Title,
		"feed_link":  feed.Link,
		"items":      items,
		"item_count": len(items),
	}, nil
}
