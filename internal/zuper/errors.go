package zuper

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the transient and permanent failure classes.
var (
	ErrTimeout     = errors.New("zuper: request timed out")
	ErrRateLimited = errors.New("zuper: rate limited")
	ErrServer      = errors.New("zuper: server error")
	ErrBadResponse = errors.New("zuper: bad response")
)

// Error categories used in enrichment summaries.
const (
	CategoryTimeout   = "timeout"
	CategoryRateLimit = "rate_limit"
	CategoryOther     = "other"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zuper: http %d: %s", e.Code, e.Body)
}

// Unwrap maps the status to its sentinel so errors.Is works on the class.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == 429:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrServer
	}
	return nil
}

// retryable reports whether err is a transient failure worth retrying.
func retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer)
}

// asTimeout converts a transport timeout into ErrTimeout.
func asTimeout(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Classify maps an error to an enrichment summary category.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimit
	default:
		return CategoryOther
	}
}
