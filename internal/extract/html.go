package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"head":     true,
}

// extractHTML walks the token stream and returns visible text with
// block boundaries collapsed to newlines. Parse errors end the walk
// and return whatever was collected.
func extractHTML(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)
	var (
		text        strings.Builder
		skipDepth   int
		lastWasText bool
	)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(text.String()), nil

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipTags[tag] {
				skipDepth++
			}
			if isBlockTag(tag) && lastWasText {
				text.WriteString("\n")
				lastWasText = false
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if skipTags[string(tn)] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			content := strings.TrimSpace(string(tokenizer.Text()))
			if content == "" {
				continue
			}
			if lastWasText {
				text.WriteString(" ")
			}
			text.WriteString(content)
			lastWasText = true
		}
	}
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "br", "hr", "blockquote", "pre", "article",
		"section", "header", "footer", "nav", "main", "tr":
		return true
	}
	return false
}
