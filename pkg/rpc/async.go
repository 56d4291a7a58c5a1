package rpc

import "context"

// Result is the outcome of an asynchronous call.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn in a goroutine and delivers its result on the returned channel,
// which receives exactly one value and is then closed. Async surfaces use it
// to wrap blocking client calls.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	}()
	return out
}

// Await waits for a result or for ctx to be done.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
