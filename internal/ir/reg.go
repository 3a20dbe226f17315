// Package ir defines the fixed-width register-machine bytecode that the
// translator emits and the executor dispatches: instructions, register/slot
// addressing, spans, and immediate encodings.
package ir

// Reg is a signed 16-bit index into the current frame's slot window.
// Non-negative values address a live stack slot (local, parameter, or
// translator-allocated temporary). Negative values address a function-local
// constant: register -1 is constant table index 0, -2 is index 1, and so on.
type Reg int16

// IsConst reports whether r addresses the function-local constant table
// rather than a live stack slot.
func (r Reg) IsConst() bool { return r < 0 }

// ConstIndex converts a constant register into a zero-based index into the
// owning Body's Consts table. Only valid when IsConst is true.
func (r Reg) ConstIndex() int { return int(-r) - 1 }

// ConstReg encodes a zero-based constant-table index as a negative register.
func ConstReg(index int) Reg { return Reg(-(index + 1)) }

// NoReg marks an unused register operand.
const NoReg Reg = 0x7fff

// Span is a contiguous run of registers: (Head, Head+1, ..., Head+Len-1).
// Used for call argument/result windows and multi-value select targets.
type Span struct {
	Head Reg
	Len  uint16
}

// Empty reports whether the span carries no registers.
func (s Span) Empty() bool { return s.Len == 0 }
