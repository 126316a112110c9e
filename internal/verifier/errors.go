package verifier

import "fmt"

// Verification error codes (E100-E199)
const (
	ErrMalformedUnit        = "E100" // wrong kind stamp or bytecode version
	ErrInvalidIdentifier    = "E101" // module, resource, function or param name
	ErrDuplicateName        = "E102" // duplicate declaration in one scope
	ErrInvalidType          = "E103" // unknown type or type parameter out of scope
	ErrForeignResource      = "E104" // resource op on a resource the module does not declare
	ErrResourceOpInScript   = "E105" // move_to/move_from/update/exists/field in a script
	ErrUndeclaredParam      = "E106" // $name with no matching parameter
	ErrArityMismatch        = "E107" // wrong number of call arguments
	ErrTypeMismatch         = "E108" // expression type does not fit its position
	ErrFieldMismatch        = "E109" // missing, extra or unknown resource fields
	ErrMissingImport        = "E110" // external call with no import table entry
	ErrTypeArgumentMismatch = "E111" // wrong number or kind of type arguments
	ErrUndeclaredDependency = "E112" // import or call names a module outside deps
	ErrInvalidConstant      = "E113" // constant text does not parse as its type
)

// VerificationError describes why a unit was rejected.
//
// Location is "<module>::<function>[<instr>]" inside a function body,
// "script[<instr>]" inside a script, or the declaration otherwise.
type VerificationError struct {
	Code     string `json:"code"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Location, e.Message)
}

func newError(code, location, format string, args ...any) VerificationError {
	return VerificationError{Code: code, Location: location, Message: fmt.Sprintf(format, args...)}
}
