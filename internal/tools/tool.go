// Package tools provides the native tool registry. Tool nodes select an
// implementation here through their impl field; workflows never execute
// arbitrary code.
package tools

import "context"

type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input any) (any, error)
}
