package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Compile error codes (E200-E299)
const (
	ErrSyntax               = "E200" // CUE parse or evaluation error
	ErrUnresolvedDependency = "E201" // referenced module is not in the library
	ErrUnknownFunction      = "E202" // function missing or not public
	ErrUnknownUnit          = "E203" // file declares neither module nor script
	ErrInvalidExpression    = "E204" // malformed expression
	ErrInvalidInstruction   = "E205" // malformed instruction
	ErrInvalidType          = "E206" // malformed type name
	ErrMissingField         = "E207" // required field absent
	ErrWrongUnitKind        = "E208" // module expected, script found (or reverse)
	ErrInvalidName          = "E209" // malformed identifier or address
	ErrUnknownKey           = "E210" // key not valid at this position
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func newError(code, field string, pos token.Pos, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(field string, err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: ErrSyntax, Field: field, Message: err.Error()}
	}

	// Return first error with position info
	firstErr := errs[0]
	ce := &CompileError{
		Code:    ErrSyntax,
		Field:   field,
		Message: firstErr.Error(),
	}
	if positions := errors.Positions(firstErr); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
