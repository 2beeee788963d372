package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess           Code = 0
	CodeInternal          Code = 1
	CodeUsage             Code = 2
	CodeAuth              Code = 10
	CodeRateLimited       Code = 11
	CodeUnavailable       Code = 12
	CodeUnsupported       Code = 13
	CodeBlocked           Code = 16
	CodeSigner            Code = 20
	CodeMalformedQuote    Code = 21
	CodeChainMismatch     Code = 22
	CodeOnChain           Code = 23
	CodeTimeout           Code = 24
	CodeInsufficientFunds Code = 25
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the outermost typed code, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

// TypeName is the envelope-facing name of a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "blocked"
	case CodeSigner:
		return "signer_error"
	case CodeMalformedQuote:
		return "malformed_quote"
	case CodeChainMismatch:
		return "chain_mismatch"
	case CodeOnChain:
		return "onchain_failure"
	case CodeTimeout:
		return "timeout"
	case CodeInsufficientFunds:
		return "insufficient_balance"
	default:
		return "internal_error"
	}
}

var typedCodes = []Code{
	CodeUsage, CodeAuth, CodeRateLimited, CodeUnavailable, CodeUnsupported, CodeBlocked,
	CodeSigner, CodeMalformedQuote, CodeChainMismatch, CodeOnChain, CodeTimeout, CodeInsufficientFunds,
}

// CodeForType reverses TypeName. Unknown names map to CodeInternal.
func CodeForType(name string) Code {
	for _, c := range typedCodes {
		if TypeName(c) == name {
			return c
		}
	}
	return CodeInternal
}
