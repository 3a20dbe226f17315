package wasm

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// eofReader is the default SysContext.Stdin: any read returns io.EOF without
// blocking, rather than reading from a real console (WASI console I/O is a
// host-module concern this interpreter doesn't implement, not this type's).
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// SysContext holds the process-like state a host function may observe
// through the Module it's called on: args, environment, and the three
// standard streams. It does not implement a filesystem; modules that import
// WASI-style file functions must supply their own host implementations.
type SysContext struct {
	args        []string
	argsSize    uint32
	environ     []string
	environSize uint32
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
}

// NewSysContext validates and builds a SysContext. maxSize bounds the
// count and the NUL-terminated byte size of args, and of environ, each on
// its own, matching the
// WASI args_sizes_get/environ_sizes_get contract that these values must fit
// an i32 byte count the guest preallocates.
func NewSysContext(maxSize uint32, args, environ []string, stdin io.Reader, stdout, stderr io.Writer) (*SysContext, error) {
	argsSize, err := nulTerminatedSize("args", maxSize, args)
	if err != nil {
		return nil, err
	}
	environSize, err := nulTerminatedSize("environ", maxSize, environ)
	if err != nil {
		return nil, err
	}
	if stdin == nil {
		stdin = eofReader{}
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &SysContext{
		args: args, argsSize: argsSize,
		environ: environ, environSize: environSize,
		stdin: stdin, stdout: stdout, stderr: stderr,
	}, nil
}

// DefaultSysContext returns a SysContext with no args/environ, stdin always
// returning io.EOF, and stdout/stderr discarded.
func DefaultSysContext() *SysContext {
	sys, _ := NewSysContext(0, nil, nil, nil, nil, nil)
	return sys
}

func (s *SysContext) Args() []string      { return s.args }
func (s *SysContext) ArgsSize() uint32    { return s.argsSize }
func (s *SysContext) Environ() []string   { return s.environ }
func (s *SysContext) EnvironSize() uint32 { return s.environSize }
func (s *SysContext) Stdin() io.Reader    { return s.stdin }
func (s *SysContext) Stdout() io.Writer   { return s.stdout }
func (s *SysContext) Stderr() io.Writer   { return s.stderr }

// Close releases anything SysContext owns that needs explicit cleanup. It
// closes stdin/stdout/stderr if they implement io.Closer, ignoring streams
// the caller supplied that don't (e.g. a bytes.Reader).
func (s *SysContext) Close(context.Context) error {
	var firstErr error
	for _, c := range []any{s.stdin, s.stdout, s.stderr} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// nulTerminatedSize validates a list of strings the same way WASI's
// args_sizes_get/environ_sizes_get do: no entry may contain a NUL byte (it
// is the guest-visible delimiter), and the total count and NUL-terminated
// byte size must each fit within maxSize.
func nulTerminatedSize(kind string, maxSize uint32, vals []string) (uint32, error) {
	if len(vals) == 0 {
		return 0, nil
	}
	if maxSize == 0 || uint32(len(vals)) > maxSize {
		return 0, fmt.Errorf("%s invalid: exceeds maximum count", kind)
	}
	var size uint32
	for _, v := range vals {
		if strings.IndexByte(v, 0) >= 0 {
			return 0, fmt.Errorf("%s invalid: contains NUL character", kind)
		}
		size += uint32(len(v)) + 1 // +1 for the NUL terminator written to guest memory
	}
	if size > maxSize {
		return 0, fmt.Errorf("%s invalid: exceeds maximum size", kind)
	}
	return size, nil
}
