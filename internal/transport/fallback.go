package transport

import (
	"context"
	"errors"
)

// ErrNoCandidates is returned by DoFirst when the candidate list is empty.
var ErrNoCandidates = errors.New("no candidate requests")

// AttemptInOrder invokes candidates strictly in the given order and returns
// the first successful result. When every candidate fails, the LAST recorded
// error is returned verbatim; callers inspect it as the most recent upstream
// response. The retry is bounded by the candidate list, nothing is reordered
// and nothing is retried twice.
func AttemptInOrder[T any, R any](ctx context.Context, candidates []T, invoke func(context.Context, T) (R, error)) (R, error) {
	var (
		result  R
		lastErr error
	)
	for _, candidate := range candidates {
		res, err := invoke(ctx, candidate)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	return result, lastErr
}

// DoFirst issues the candidate requests for one logical operation through
// the authenticated pipeline, tolerating upstream endpoint drift. An empty
// candidate list is ErrNoCandidates, never a silent nil response.
func (c *Client) DoFirst(ctx context.Context, candidates []Request) (*Response, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return AttemptInOrder(ctx, candidates, c.Do)
}
