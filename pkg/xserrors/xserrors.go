// Package xserrors classifies handler failures into the XSD wire error
// strings the XenStore protocol replies with.
package xserrors

import "errors"

// WireError carries one of the XSD error strings reported in an ERROR
// reply payload.
type WireError struct {
	code string
}

// Error implements error.
func (e *WireError) Error() string {
	return e.code
}

// Code returns the bare XSD string, e.g. "ENOENT", with no NUL terminator.
func (e *WireError) Code() string {
	return e.code
}

var (
	// ErrInvalid is EINVAL: malformed request, bad path, bad arguments.
	ErrInvalid = &WireError{"EINVAL"}
	// ErrNotFound is ENOENT: path lookup failed.
	ErrNotFound = &WireError{"ENOENT"}
	// ErrNoMem is ENOMEM: allocation failure or path too long.
	ErrNoMem = &WireError{"ENOMEM"}
	// ErrBusy is EBUSY: a transaction is already active.
	ErrBusy = &WireError{"EBUSY"}
	// ErrNoSys is ENOSYS: opcode unimplemented.
	ErrNoSys = &WireError{"ENOSYS"}
	// ErrTooBig is E2BIG: payload exceeds ring capacity.
	ErrTooBig = &WireError{"E2BIG"}
)

// Classify maps any error to its XSD wire string, defaulting unclassified
// errors to EINVAL.
func Classify(err error) string {
	var we *WireError
	if errors.As(err, &we) {
		return we.Code()
	}
	return ErrInvalid.code
}
