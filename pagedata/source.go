package pagedata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrProviderPanicked is returned when a Provider panics.
var ErrProviderPanicked = errors.New("provider panicked")

// Provider computes the data for the page at pagePath. It
// may block; it should honour ctx cancellation.
type Provider func(ctx context.Context, pagePath string) (any, error)

// Source is either a static value or a Provider. The zero
// Source resolves to an empty map.
type Source struct {
	static   any
	provider Provider
}

// Static returns a Source that always resolves to v. A nil
// v resolves to an empty map.
func Static(v any) Source {
	return Source{static: v}
}

// FromProvider returns a Source backed by p.
func FromProvider(p Provider) Source {
	return Source{provider: p}
}

// IsProvider reports whether s calls a Provider.
func (s Source) IsProvider() bool {
	return s.provider != nil
}

// Resolve returns the data for pagePath. A positive
// timeout bounds the provider call; the provider keeps
// running in the background if it ignores ctx.
func (s Source) Resolve(
	ctx context.Context,
	pagePath string,
	timeout time.Duration,
) (any, error) {
	const errCtx = "resolving page data"

	if s.provider == nil {
		if s.static == nil {
			return map[string]any{}, nil
		}

		return s.static, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val any
		err error
	}

	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{
					err: fmt.Errorf("%w: %v", ErrProviderPanicked, r),
				}
			}
		}()

		val, err := s.provider(ctx, pagePath)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf(
				"%s %s: %w", errCtx, pagePath, res.err,
			)
		}

		if res.val == nil {
			return map[string]any{}, nil
		}

		return res.val, nil
	case <-ctx.Done():
		return nil, fmt.Errorf(
			"%s %s: %w", errCtx, pagePath, ctx.Err(),
		)
	}
}
