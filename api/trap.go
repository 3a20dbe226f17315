package api

import (
	"context"

	"github.com/wazeroir/regwasm/internal/wasmruntime"
)

// TrapCode is a re-export of wasmruntime.TrapCode for callers that need to
// branch on why a call trapped without importing an internal package.
type TrapCode = wasmruntime.TrapCode

const (
	TrapCodeUnreachable                = wasmruntime.TrapCodeUnreachable
	TrapCodeIntegerDivideByZero        = wasmruntime.TrapCodeIntegerDivideByZero
	TrapCodeIntegerOverflow            = wasmruntime.TrapCodeIntegerOverflow
	TrapCodeInvalidConversionToInteger = wasmruntime.TrapCodeInvalidConversionToInteger
	TrapCodeOutOfBoundsMemoryAccess    = wasmruntime.TrapCodeOutOfBoundsMemoryAccess
	TrapCodeInvalidTableAccess         = wasmruntime.TrapCodeInvalidTableAccess
	TrapCodeIndirectCallTypeMismatch   = wasmruntime.TrapCodeIndirectCallTypeMismatch
	TrapCodeCallStackOverflow          = wasmruntime.TrapCodeCallStackOverflow
	TrapCodeOutOfFuel                  = wasmruntime.TrapCodeOutOfFuel
	TrapCodeUninitializedElement       = wasmruntime.TrapCodeUninitializedElement
)

// ResumableCall re-enters a call that previously trapped with
// TrapCodeOutOfFuel, continuing from the saved instruction pointer instead of
// re-marshalling arguments and starting over. Calling it after refilling fuel
// picks up exactly where execution left off. Only an out-of-fuel Trap carries
// one: every other Trap's Resume is nil.
type ResumableCall func(ctx context.Context) ([]uint64, error)

// Trap is returned (wrapped in the error returned from Function.Call) when a
// call aborts for a Wasm-defined reason rather than a host-side Go error.
type Trap struct {
	// Code identifies why execution aborted.
	Code TrapCode

	// Resume is non-nil only when Code is TrapCodeOutOfFuel: refuel and call
	// it to continue the trapped call from where it stopped.
	Resume ResumableCall

	err error
}

func NewTrap(code TrapCode, cause error, resume ResumableCall) *Trap {
	return &Trap{Code: code, Resume: resume, err: cause}
}

func (t *Trap) Error() string { return t.err.Error() }

func (t *Trap) Unwrap() error { return t.err }
