// Package wasmdebug builds human-readable function names and wasm stack
// traces for traps and host-function panics, without depending on DWARF or
// any other out-of-band debug info: everything here is derived from the
// module/function names and signatures the store already has on hand.
package wasmdebug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wazeroir/regwasm/api"
	"github.com/wazeroir/regwasm/internal/wasmruntime"
)

// FuncName formats a function's fully qualified display name: its module
// name, then a dot, then either its own name or, when unnamed, "$" followed
// by its index.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = "$" + strconv.FormatUint(uint64(funcIdx), 10)
	}
	return moduleName + "." + funcName
}

// signature appends a Wasm-style parameter/result type list to a fully
// qualified function name, e.g. "x.y(i32,f64) i64" or "x.y()" for a function
// with no results.
func signature(fullName string, paramTypes, resultTypes []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(fullName)
	sb.WriteByte('(')
	writeTypeList(&sb, paramTypes)
	sb.WriteByte(')')
	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(resultTypes[0]))
	default:
		sb.WriteString(" (")
		writeTypeList(&sb, resultTypes)
		sb.WriteByte(')')
	}
	return sb.String()
}

func writeTypeList(sb *strings.Builder, types []api.ValueType) {
	for i, t := range types {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(api.ValueTypeName(t))
	}
}

// frame is one entry of an ErrorBuilder's accumulated stack trace, recorded
// innermost (the frame where the panic originated) first.
type frame struct {
	signature string
}

// ErrorBuilder accumulates Wasm call frames, innermost first, as a panic
// unwinds back through the executor's recover point, then renders them into
// a single wrapped error.
type ErrorBuilder interface {
	// AddFrame records one call frame. paramTypes/resultTypes may be nil for
	// a function with no parameters/results.
	AddFrame(name string, paramTypes, resultTypes []api.ValueType)
	// FromRecovered turns a recover()'d value (already normalized to an
	// error by the caller) into a final error with a wasm stack trace
	// appended, preserving err as Unwrap() target.
	FromRecovered(err error) error
}

type errorBuilder struct {
	frames []frame
}

// NewErrorBuilder returns an empty ErrorBuilder.
func NewErrorBuilder() ErrorBuilder { return &errorBuilder{} }

func (b *errorBuilder) AddFrame(name string, paramTypes, resultTypes []api.ValueType) {
	b.frames = append(b.frames, frame{signature: signature(name, paramTypes, resultTypes)})
}

func (b *errorBuilder) FromRecovered(err error) error {
	var sb strings.Builder
	sb.WriteString(messageFor(err))
	sb.WriteString("\nwasm stack trace:")
	for _, f := range b.frames {
		sb.WriteString("\n\t")
		sb.WriteString(f.signature)
	}
	return &tracedError{msg: sb.String(), cause: err}
}

// messageFor chooses the leading line of the rendered error: a
// *wasmruntime.Error prints as-is (already "wasm error: ..."), and anything
// else, a Go runtime panic (nil dereference, index out of range, ...)
// included, gets the "(recovered by wazero)" suffix to make clear a Go
// panic, not a Wasm trap, was caught.
func messageFor(err error) string {
	if _, ok := err.(*wasmruntime.Error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%s (recovered by wazero)", err.Error())
}

// tracedError is the concrete error FromRecovered returns: its Error()
// already contains the full trace, and Unwrap returns the originally
// recovered error unchanged so callers can errors.Is/As through it.
type tracedError struct {
	msg   string
	cause error
}

func (e *tracedError) Error() string { return e.msg }
func (e *tracedError) Unwrap() error { return e.cause }
