package hnap

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ProtocolError.
var (
	ErrMissingEnvelope = errors.New("missing response envelope")
	ErrResultNotOK     = errors.New("operation result not OK")
)

// ProtocolError reports a response that reached the client but failed
// validation: a non-2xx status, an undecodable body, a missing envelope or
// a result other than "OK".
type ProtocolError struct {
	Operation  string
	StatusCode int
	Body       string
	Result     string
	Err        error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("hnap %s: invalid response code %d", e.Operation, e.StatusCode)
	case e.Result != "":
		return fmt.Sprintf("hnap %s: %v: %q", e.Operation, e.Err, e.Result)
	default:
		return fmt.Sprintf("hnap %s: %v", e.Operation, e.Err)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError reports a failed login sequence. Step is "request" for the
// challenge round trip and "login" for the credential round trip.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("hnap login (%s): %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps connect, read, DNS and TLS failures. These are never
// fatal; the next scheduled attempt simply tries again.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hnap %s: transport: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
