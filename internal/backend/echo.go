package backend

import "context"

// Echo returns its rendered instructions as the step output. It backs
// the "echo" model selector so workflows can run and be tested without
// a live model provider.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Generate(_ context.Context, req Request) (*Result, error) {
	return &Result{Output: req.Instructions}, nil
}
