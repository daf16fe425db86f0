package backoff

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass tags a failure for retry decisions.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code from
// the call boundary. Classification prefers the code over message sniffing.
type StatusCoder interface {
	StatusCode() int
}

// transientPatterns match unstructured errors that usually resolve on retry.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"too many requests",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"service unavailable",
	"eof",
}

// permanentPatterns match unstructured errors that will not resolve on retry.
var permanentPatterns = []string{
	"invalid",
	"not found",
	"unauthorized",
	"forbidden",
	"bad request",
	"unsupported",
}

// Classify tags an error as transient, permanent or unknown. Status codes
// win: 429 and 5xx are transient, all other 4xx are permanent. Errors
// without a status code fall back to message-pattern rules.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == 429:
			return ClassTransient
		case code >= 500:
			return ClassTransient
		case code >= 400:
			return ClassPermanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return ClassPermanent
		}
	}
	return ClassUnknown
}
