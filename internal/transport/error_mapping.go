package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// NetError is a classified network-layer failure carrying a human-readable
// message and whether it represents a timeout.
type NetError struct {
	Message   string
	IsTimeout bool
}

func (e *NetError) Error() string { return e.Message }

// MapError classifies a transport error returned by the standard net/http
// stack into a NetError, so the caller can decide between OutcomeTimeout and
// OutcomeTransport without re-deriving the net.Error chain itself.
func MapError(err error) *NetError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &NetError{Message: "operation cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetError{Message: "request timeout exceeded", IsTimeout: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &NetError{
			Message:   fmt.Sprintf("DNS lookup failed for %s: %s", dnsErr.Name, dnsErr.Err),
			IsTimeout: dnsErr.IsTimeout,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return mapNetOpError(opErr)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &NetError{Message: fmt.Sprintf("request timeout: %s", urlErr.Op), IsTimeout: true}
		}
		return MapError(urlErr.Err)
	}

	var tlsRecordErr *tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return &NetError{Message: "TLS record header error"}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &NetError{Message: fmt.Sprintf("certificate verification failed: %v", certErr.Err)}
	}

	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthErr) {
		return &NetError{Message: "certificate signed by unknown authority"}
	}

	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &certInvalidErr) {
		return &NetError{Message: fmt.Sprintf("certificate invalid: %s", certInvalidErr.Detail)}
	}

	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return &NetError{Message: fmt.Sprintf("certificate hostname mismatch: %s", hostErr.Host)}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "tls:") || strings.Contains(errStr, "TLS") {
		return &NetError{Message: errStr}
	}

	return &NetError{Message: errStr}
}

func mapNetOpError(err *net.OpError) *NetError {
	if err.Timeout() {
		return &NetError{Message: fmt.Sprintf("%s timeout", err.Op), IsTimeout: true}
	}
	if err.Op == "dial" {
		return mapDialError(err)
	}
	if err.Op == "read" || err.Op == "write" {
		return mapIOError(err)
	}
	return &NetError{Message: err.Error()}
}

func mapDialError(err *net.OpError) *NetError {
	if err.Err != nil {
		var errno syscall.Errno
		if errors.As(err.Err, &errno) {
			return mapSyscallError(errno, err)
		}
		var opErr *net.OpError
		if errors.As(err.Err, &opErr) {
			return mapNetOpError(opErr)
		}
		errStr := err.Err.Error()
		switch {
		case strings.Contains(errStr, "connection refused"):
			return &NetError{Message: fmt.Sprintf("connection refused to %s", err.Addr)}
		case strings.Contains(errStr, "connection reset"):
			return &NetError{Message: fmt.Sprintf("connection reset by %s", err.Addr)}
		case strings.Contains(errStr, "network is unreachable"):
			return &NetError{Message: "network is unreachable"}
		}
	}
	return &NetError{Message: err.Error()}
}

func mapIOError(err *net.OpError) *NetError {
	if err.Err != nil && strings.Contains(err.Err.Error(), "connection reset") {
		return &NetError{Message: "connection reset during " + err.Op}
	}
	return &NetError{Message: err.Error()}
}

func mapSyscallError(errno syscall.Errno, opErr *net.OpError) *NetError {
	switch errno {
	case syscall.ECONNREFUSED:
		return &NetError{Message: fmt.Sprintf("connection refused to %s", opErr.Addr)}
	case syscall.ECONNRESET:
		return &NetError{Message: "connection reset by peer"}
	case syscall.ENETUNREACH:
		return &NetError{Message: "network is unreachable"}
	case syscall.ETIMEDOUT:
		return &NetError{Message: "connection timed out", IsTimeout: true}
	default:
		return &NetError{Message: errno.Error()}
	}
}
