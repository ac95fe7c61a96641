package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the gateway client
type ErrorKind string

const (
	KindLocalValidation  ErrorKind = "local_validation"
	KindCredential       ErrorKind = "credential"
	KindGatewayTransport ErrorKind = "gateway_transport"
	KindGatewayProtocol  ErrorKind = "gateway_protocol"
	KindConfiguration    ErrorKind = "configuration"
)

// Sentinels for errors.Is. They match any GatewayError of the same kind.
var (
	ErrLocalValidation  = &GatewayError{Kind: KindLocalValidation}
	ErrCredential       = &GatewayError{Kind: KindCredential}
	ErrGatewayTransport = &GatewayError{Kind: KindGatewayTransport}
	ErrGatewayProtocol  = &GatewayError{Kind: KindGatewayProtocol}
	ErrConfiguration    = &GatewayError{Kind: KindConfiguration}
)

// GatewayError is the typed error returned by providers and the payment service
type GatewayError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can test against the package sentinels
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a GatewayError
func NewError(kind ErrorKind, op, message string, err error) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first GatewayError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}
