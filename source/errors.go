package source

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies why a fetch from an upstream feed failed
type Kind int

const (
	// KindTransport covers network, DNS, timeout and non-success HTTP statuses
	KindTransport Kind = iota + 1
	// KindRateLimited is an HTTP 429 from the upstream
	KindRateLimited
	// KindShape means the response decoded but lacked the expected fields
	KindShape
	// KindContract means the upstream explicitly reported errors, e.g. a GraphQL errors array
	KindContract
	// KindParse means the body could not be decoded as the expected format
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindShape:
		return "shape"
	case KindContract:
		return "contract"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is returned by every Source when a fetch fails
type FetchError struct {
	Kind   Kind
	Source string

	// HTTP status of the failed response, zero when no response was received
	Status int

	// Delay requested by the upstream through a Retry-After header
	RetryAfter time.Duration

	// Upstream provided error payload, set for KindContract
	Details interface{}

	Err error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Source, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first FetchError in err's chain
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsContract reports whether err is an explicit upstream contract violation
func IsContract(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindContract
}

func newError(source string, kind Kind, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Err: err}
}
