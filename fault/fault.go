//Package fault holds the error taxonomy shared by the hashing, engine and protocol layers
package fault

import (
	"errors"
	"fmt"
)

//Kind classifies an error by how the caller is expected to react to it
type Kind string

const (
	//Parameter errors are malformed argon2 parameters or an unknown algorithm tag; job-fatal
	Parameter Kind = "parameter"
	//Hash errors come from the primitive itself; job-fatal
	Hash Kind = "hash"
	//Decode errors reject a single inbound message
	Decode Kind = "decode"
	//Transport errors end the current session
	Transport Kind = "transport"
	//Bootstrap errors happen before any connection is opened
	Bootstrap Kind = "bootstrap"
	//Config errors stop the process at startup
	Config Kind = "config"
)

type GenericError string

// to allow for different classes of errors
type ParameterError GenericError
type HashError GenericError
type DecodeError GenericError
type TransportError GenericError
type BootstrapError GenericError
type ConfigError GenericError

// common errors - keep in alphabetic order
var (
	ErrConnectionClosed    = TransportError("connection closed by peer")
	ErrInvalidCost         = ParameterError("invalid argon2 cost parameters")
	ErrInvalidVariant      = ParameterError("invalid argon2 variant")
	ErrInvalidVersion      = ParameterError("invalid argon2 version")
	ErrLengthMismatch      = HashError("digest length does not match target length")
	ErrMalformedMessage    = DecodeError("malformed message")
	ErrMalformedTarget     = ParameterError("target is not hex")
	ErrMissingCaptchaToken = ConfigError("captcha token not found in HCAPTCHA_TOKEN or HCAPTCHA_TOKEN_FILE")
	ErrMissingSession      = BootstrapError("missing session in bootstrap response")
	ErrMissingWallet       = ConfigError("wallet address is required")
	ErrStopped             = TransportError("engine stopped")
	ErrUnknownAction       = DecodeError("unknown action")
	ErrUnknownAlgorithm    = ParameterError("unknown mining algorithm")
	ErrUnknownShareStatus  = DecodeError("unknown share status")
)

func (e GenericError) Error() string   { return string(e) }
func (e ParameterError) Error() string { return string(e) }
func (e HashError) Error() string      { return string(e) }
func (e DecodeError) Error() string    { return string(e) }
func (e TransportError) Error() string { return string(e) }
func (e BootstrapError) Error() string { return string(e) }
func (e ConfigError) Error() string    { return string(e) }

func (e ParameterError) FaultKind() Kind { return Parameter }
func (e HashError) FaultKind() Kind      { return Hash }
func (e DecodeError) FaultKind() Kind    { return Decode }
func (e TransportError) FaultKind() Kind { return Transport }
func (e BootstrapError) FaultKind() Kind { return Bootstrap }
func (e ConfigError) FaultKind() Kind    { return Config }

type kinded interface {
	FaultKind() Kind
}

//Error attaches a kind and the failing operation to an underlying error
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) FaultKind() Kind { return e.Kind }

//Wrap returns nil when err is nil
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

//Errorf builds a kinded error from a format string; %w is honoured
func Errorf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

//KindOf reports the outermost kind found in the chain, or "" for foreign errors
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(kinded); ok {
			return k.FaultKind()
		}
		err = errors.Unwrap(err)
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

//Fatal reports errors that end a session rather than a single job or message
func Fatal(err error) bool {
	switch KindOf(err) {
	case Transport, Bootstrap, Config:
		return true
	case Parameter, Hash, Decode:
		return false
	}
	return err != nil
}
