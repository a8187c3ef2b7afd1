package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSigningFailed  = errors.New("signing failed")
	ErrUnknownAsset   = errors.New("unknown asset")
	ErrMalformedEvent = errors.New("malformed event")
	ErrTransport      = errors.New("transport failure")
	ErrExecution      = errors.New("execution failure")
	ErrLockHeld       = errors.New("lock held by another owner")
)

// UnknownAssetError reports an event for an asset id matching neither leg.
type UnknownAssetError struct {
	AssetID string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset id %q", e.AssetID)
}

func (e *UnknownAssetError) Unwrap() error { return ErrUnknownAsset }

// MalformedEventError reports a frame or event that could not be decoded.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedEvent, e.Err}
	}
	return []error{ErrMalformedEvent}
}

// TransportError reports a dial, send or receive failure on the feed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// ExecutionError reports a failed order operation for one token.
type ExecutionError struct {
	TokenID string
	Op      string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s %s: %v", e.Op, e.TokenID, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }
