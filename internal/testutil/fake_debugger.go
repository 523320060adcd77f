// Package testutil provides small fakes shared by this module's package
// tests, analogous to sysbox-fs's handcrafted fakes under domain/ and
// process/ test files (its own mocks/ directory is generated from a
// different, container-scoped set of interfaces and doesn't fit here).
package testutil

import (
	"github.com/dmoj-sandbox/cptbox-go/domain"
)

// FakeDebugger is an in-memory domain.Debugger for unit tests: it holds a
// fixed set of argument registers and a map of pointer -> string/bytes that
// ReadString/ReadBytes serve from, instead of touching a real tracee.
type FakeDebugger struct {
	TidVal  uint32
	PidVal  uint32
	Bits    int
	Args    [8]int64
	UArgs   [8]uint64
	Strings map[uint64]string
	Bytes   map[uint64][]byte

	Suppressed bool
	Result     int64
	OnReturnFn func()

	ReadStringErr error
	ReadBytesErr  error
}

func NewFakeDebugger() *FakeDebugger {
	return &FakeDebugger{
		Bits:    64,
		Strings: make(map[uint64]string),
		Bytes:   make(map[uint64][]byte),
	}
}

func (f *FakeDebugger) Tid() uint32        { return f.TidVal }
func (f *FakeDebugger) Pid() uint32        { return f.PidVal }
func (f *FakeDebugger) AddressBits() int   { return f.Bits }
func (f *FakeDebugger) Arg(i int) int64    { return f.Args[i] }
func (f *FakeDebugger) UArg(i int) uint64  { return f.UArgs[i] }

func (f *FakeDebugger) ReadString(ptr uint64) (string, error) {
	if f.ReadStringErr != nil {
		return "", f.ReadStringErr
	}
	return f.Strings[ptr], nil
}

func (f *FakeDebugger) ReadBytes(ptr uint64, n int) ([]byte, error) {
	if f.ReadBytesErr != nil {
		return nil, f.ReadBytesErr
	}
	b := f.Bytes[ptr]
	if len(b) > n {
		b = b[:n]
	}
	return b, nil
}

func (f *FakeDebugger) SuppressSyscall() { f.Suppressed = true }
func (f *FakeDebugger) SetResult(v int64) { f.Result = v }
func (f *FakeDebugger) OnReturn(fn func()) { f.OnReturnFn = fn }

// SetPath stores s at ptr so a later ReadString(ptr) returns it, and mirrors
// it as bytes with a trailing NUL for ReadBytes-based callers.
func (f *FakeDebugger) SetPath(ptr uint64, s string) {
	f.Strings[ptr] = s
	f.Bytes[ptr] = append([]byte(s), 0)
}

var _ domain.Debugger = (*FakeDebugger)(nil)
