package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrRangeTooLarge is returned before any request when a date range query
// exceeds what the upstream accepts.
var ErrRangeTooLarge = errors.New("date range exceeds 7 days")

// ConnectivityError means the upstream could not be reached (DNS, TCP, TLS,
// timeout). The request may be retried later unchanged.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("feed %s: connectivity: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// UpstreamError means the upstream answered, but not with a usable payload.
type UpstreamError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code != "":
		return fmt.Sprintf("feed %s: upstream error %s: %s", e.Op, e.Code, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("feed %s: upstream http %d: %s", e.Op, e.StatusCode, msg)
	default:
		return fmt.Sprintf("feed %s: upstream protocol: %s", e.Op, msg)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Kind classifies err for status reporting.
func Kind(err error) string {
	var ce *ConnectivityError
	var ue *UpstreamError
	switch {
	case errors.As(err, &ce):
		return "connectivity"
	case errors.As(err, &ue):
		return "upstream"
	default:
		return ""
	}
}
