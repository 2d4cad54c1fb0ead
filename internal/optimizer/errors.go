package optimizer

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRemoteOptimizer wraps every failure talking to the dispatch optimizer.
// The heuristic sizing stays valid when it occurs.
var ErrRemoteOptimizer = errors.New("remote optimizer unavailable")

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

// StatusCode returns the HTTP status behind err, or 0 when the failure
// never produced a response.
func StatusCode(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.statusCode
	}
	return 0
}

func isRetryable(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return true // network errors are retryable
	}
	return ae.statusCode == http.StatusTooManyRequests || ae.statusCode >= 500
}
