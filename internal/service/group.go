package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Runner is a top-level unit a Group manages.
type Runner interface {
	Name() string
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// Group brings several independent services up and down concurrently.
// Each service still runs its own plan sequentially.
type Group struct {
	runners []Runner
}

// NewGroup creates a group.
func NewGroup(runners ...Runner) *Group {
	return &Group{runners: runners}
}

// Up starts every service. The first failure cancels the others' context,
// and their remaining required steps abort.
func (g *Group) Up(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range g.runners {
		r := r
		eg.Go(func() error {
			return r.Up(ctx)
		})
	}
	return eg.Wait()
}

// Down stops every service and reports all failures. One service failing to
// stop never prevents the others from stopping.
func (g *Group) Down(ctx context.Context) error {
	var eg errgroup.Group
	errs := make([]error, len(g.runners))
	for i, r := range g.runners {
		i, r := i, r
		eg.Go(func() error {
			errs[i] = r.Down(ctx)
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
