package payment

import (
	"errors"
	"fmt"
	"net/http"

	"guia-paracuru/internal/domain/ports/adapter"
)

// HTTPError is a non-2xx processor answer. It unwraps to adapter.ErrTransport.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: processor answered %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return adapter.ErrTransport }

// retryable reports whether another attempt could succeed: network failures,
// throttling and server errors are, client errors are not.
func retryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return errors.Is(err, adapter.ErrTransport)
}
