package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/article-epub/internal/metrics"
)

// ErrBadStatus marks a response whose status code is not 2xx.
var ErrBadStatus = errors.New("unexpected status code")

// StatusError carries the status code of a rejected response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Unwrap lets errors.Is match ErrBadStatus.
func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}

// FetchWithRetry makes up to maxRetries+1 attempts with no delay between them and
// returns the last error once the budget is spent. A done context stops retrying.
func FetchWithRetry(ctx context.Context, f Fetcher, rawURL string, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, err := f.Fetch(ctx, rawURL)
		if err == nil {
			metrics.ObserveFetch(rawURL, "ok")
			return body, nil
		}
		metrics.ObserveFetch(rawURL, "error")
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
		}
	}
	return "", fmt.Errorf("fetch %s after %d attempts: %w", rawURL, maxRetries+1, lastErr)
}
