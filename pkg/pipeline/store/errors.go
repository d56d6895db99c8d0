// Retry classification, grounded on pkg/mcp/recovery.go's ClassifyError:
// connection/timeout/429/5xx are retried, every other 4xx is permanent.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cenkalti/backoff/v4"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// httpError carries the status code and truncated response body for a
// non-2xx response that reached classifyFinalError.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("store returned HTTP %d: %s", e.StatusCode, e.Body)
}

const maxErrorBodyLen = 500

func newHTTPError(statusCode int, body []byte) *httpError {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		s = s[:maxErrorBodyLen]
	}
	return &httpError{StatusCode: statusCode, Body: s}
}

// classifyFinalError converts the error returned by backoff.Retry (after
// retries are exhausted or a backoff.Permanent was raised) into the
// pipeline's error taxonomy.
func classifyFinalError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return pipelineerr.Cancelled()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipelineerr.Transient("store: request deadline exceeded", err)
	}

	var httpErr *httpError
	if errors.As(err, &httpErr) {
		if isRetryableStatus(httpErr.StatusCode) {
			return pipelineerr.Transient("store: retries exhausted", httpErr).WithContext(map[string]string{
				"status_code": fmt.Sprintf("%d", httpErr.StatusCode),
			})
		}
		return pipelineerr.Permanent("store: request rejected", httpErr).WithContext(map[string]string{
			"status_code": fmt.Sprintf("%d", httpErr.StatusCode),
		})
	}

	var permErr *backoff.PermanentError
	if errors.As(err, &permErr) {
		return pipelineerr.Permanent("store: non-retryable failure", permErr.Unwrap())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return pipelineerr.Transient("store: network error, retries exhausted", netErr)
	}

	return pipelineerr.Transient("store: retries exhausted", err)
}
