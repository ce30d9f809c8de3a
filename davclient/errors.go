package davclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/errandsync/errandsync/internal/httpclient"
	"github.com/errandsync/errandsync/internal/xmltree"
)

// Kind classifies a failed operation.
type Kind int

const (
	// KindTransport is a network, DNS or TLS failure.
	KindTransport Kind = iota + 1
	// KindStatus is a response outside 2xx.
	KindStatus
	// KindMalformed is a well-formed response missing an expected node.
	KindMalformed
	// KindParse is malformed XML or iCalendar text.
	KindParse
	// KindInvalid is a caller-side invariant violation.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed response"
	case KindParse:
		return "parse"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Error carries the operation, URL and cause of a failure.
type Error struct {
	Op         string
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Kind)
	if e.Kind == KindStatus {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request could succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func wrapErr(op, url string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	e := &Error{Op: op, URL: url, Kind: KindTransport, Err: err}
	var statusErr *httpclient.StatusError
	var syntaxErr *xmltree.SyntaxError
	switch {
	case errors.As(err, &statusErr):
		e.Kind = KindStatus
		e.StatusCode = statusErr.StatusCode
	case errors.As(err, &syntaxErr):
		e.Kind = KindParse
	}
	return e
}

func newError(op, url string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, URL: url, Kind: kind, Err: fmt.Errorf(format, args...)}
}
