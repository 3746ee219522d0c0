package tools

import (
	"context"
	"fmt"
	"time"
)

// DatetimeTool returns the current time. Useful for workflows that
// stamp or filter by date without involving a model.
type DatetimeTool struct{}

func (d *DatetimeTool) Name() string { return "datetime.now" }

func (d *DatetimeTool) Description() string {
	return "Return the current date and time, optionally in a named IANA timezone."
}

func (d *DatetimeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. Asia/Seoul (default UTC)",
			},
		},
	}
}

func (d *DatetimeTool) Execute(_ context.Context, input any) (any, error) {
	loc := time.UTC
	if args, ok := input.(map[string]any); ok {
		if tz, _ := args["timezone"].(string); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
			}
			loc = l
		}
	}
	now := time.Now().In(loc)
	return map[string]any{
		"now":      now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"weekday":  now.Weekday().String(),
		"timezone": loc.String(),
	}, nil
}
