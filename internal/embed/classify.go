package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	seekerrors "github.com/seekstack/codeseek/internal/errors"
)

// classifyTransportError maps a transport-level failure to a coded
// error so callers can distinguish an unresolvable host from a service
// that is down.
func classifyTransportError(endpoint string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return seekerrors.New(seekerrors.ErrCodeHostUnresolvable,
			fmt.Sprintf("cannot resolve embedding host %s", endpoint), err).
			WithSuggestion("check the endpoint hostname in .codeseek.yaml")
	}

	return seekerrors.New(seekerrors.ErrCodeServiceUnreachable,
		fmt.Sprintf("embedding service at %s is unreachable", endpoint), err).
		WithSuggestion("check that the embedding service is running and the endpoint is correct")
}

// classifyStatusError maps a non-2xx HTTP response to a coded error.
// 429 and 5xx are retryable; everything else fails immediately.
func classifyStatusError(status int, body string) error {
	body = strings.TrimSpace(body)
	switch {
	case status == http.StatusTooManyRequests:
		return seekerrors.Newf(seekerrors.ErrCodeRateLimited,
			"embedding provider rate limited the request (status %d)", status)
	case status >= 500:
		return seekerrors.Newf(seekerrors.ErrCodeProviderServer,
			"embedding provider returned a server error (status %d): %s", status, body)
	case status == http.StatusNotFound:
		return seekerrors.Newf(seekerrors.ErrCodeModelNotFound,
			"embedding model not found (status %d): %s", status, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return seekerrors.Newf(seekerrors.ErrCodeConfigInvalid,
			"embedding provider rejected credentials (status %d)", status)
	default:
		return seekerrors.Newf(seekerrors.ErrCodeEmbeddingFailed,
			"embedding request failed with status %d: %s", status, body)
	}
}
