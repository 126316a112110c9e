package vm

import (
	"errors"
	"fmt"
)

// StatusCode categorizes execution failures.
type StatusCode string

const (
	// StatusAborted means an assert failed or the script aborted explicitly.
	// VMError.AbortCode carries the code.
	StatusAborted StatusCode = "ABORTED"

	// StatusOutOfGas means the gas budget was exhausted.
	StatusOutOfGas StatusCode = "OUT_OF_GAS"

	// StatusResourceAlreadyExists means move_to found a resource at the sender.
	StatusResourceAlreadyExists StatusCode = "RESOURCE_ALREADY_EXISTS"

	// StatusMissingData means a resource read found nothing at the address.
	StatusMissingData StatusCode = "MISSING_DATA"

	// StatusArithmeticError means an integer overflowed or underflowed.
	StatusArithmeticError StatusCode = "ARITHMETIC_ERROR"

	// StatusLinkerError means an import does not match the published module.
	StatusLinkerError StatusCode = "LINKER_ERROR"

	// StatusTypeMismatch means a value does not have the expected type.
	StatusTypeMismatch StatusCode = "TYPE_MISMATCH"

	// StatusArgumentCountMismatch means the script got the wrong number of
	// arguments.
	StatusArgumentCountMismatch StatusCode = "NUMBER_OF_ARGUMENTS_MISMATCH"

	// StatusTypeArgumentCountMismatch means the script got the wrong number of
	// type arguments.
	StatusTypeArgumentCountMismatch StatusCode = "NUMBER_OF_TYPE_ARGUMENTS_MISMATCH"

	// StatusCallStackOverflow means calls nested deeper than MaxCallDepth.
	StatusCallStackOverflow StatusCode = "CALL_STACK_OVERFLOW"

	// StatusFunctionResolutionFailure means a call target does not exist.
	StatusFunctionResolutionFailure StatusCode = "FUNCTION_RESOLUTION_FAILURE"

	// StatusDeserializationError means bytecode or a stored value is corrupt.
	StatusDeserializationError StatusCode = "DESERIALIZATION_ERROR"

	// StatusStorageError means the state view failed.
	StatusStorageError StatusCode = "STORAGE_ERROR"
)

// VMError is the error returned by ExecuteScript for every failure inside
// the VM.
type VMError struct {
	// Status identifies the error category.
	Status StatusCode

	// Location is the executing unit: "script" or "0xADDR::Module::function".
	Location string

	// Offset is the instruction index within Location.
	Offset int

	// AbortCode is set when Status is StatusAborted.
	AbortCode uint64

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *VMError) Error() string {
	if e.Status == StatusAborted {
		return fmt.Sprintf("%s with code %d at %s[%d]", e.Status, e.AbortCode, e.Location, e.Offset)
	}
	if e.Location != "" {
		return fmt.Sprintf("%s at %s[%d]: %s", e.Status, e.Location, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// AsVMError unwraps err to a *VMError.
func AsVMError(err error) (*VMError, bool) {
	var ve *VMError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsAbort returns true if the error is an abort, with its code.
// Uses errors.As to handle wrapped errors.
func IsAbort(err error) (uint64, bool) {
	if ve, ok := AsVMError(err); ok && ve.Status == StatusAborted {
		return ve.AbortCode, true
	}
	return 0, false
}

// HasStatus reports whether err is a VMError with the given status.
func HasStatus(err error, status StatusCode) bool {
	ve, ok := AsVMError(err)
	return ok && ve.Status == status
}

func newError(status StatusCode, format string, args ...any) *VMError {
	return &VMError{Status: status, Message: fmt.Sprintf(format, args...)}
}
