package image

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey indicates an adapter was asked to generate without
// credentials configured. Never retried.
var ErrMissingAPIKey = errors.New("image: api key is required")

// ErrNoResult indicates a well-formed upstream response that contained no
// usable image.
var ErrNoResult = errors.New("image: no image in response")

// ErrInvalidResponse indicates an unparseable upstream payload shape.
var ErrInvalidResponse = errors.New("image: invalid response payload")

// ErrPollTimeout indicates the polling adapter exhausted its attempt ceiling
// before the upstream job reached a terminal state.
var ErrPollTimeout = errors.New("image: generation task polling timed out")

// UpstreamError wraps a non-2xx HTTP status from a remote provider. Only the
// fixed transient status set is retried.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Message)
}

// Transient reports whether the status belongs to the retryable set.
func (e *UpstreamError) Transient() bool {
	switch e.Status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
