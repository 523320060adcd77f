//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package tracer

import (
	"os"
	"testing"
	"unsafe"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/stretchr/testify/require"
)

// selfDebugger builds a notifDebugger whose memPath() points at this test
// process's own /proc/self/mem, so ReadBytes/ReadString exercise the real
// pread(2) path without needing an actual tracee.
func selfDebugger(t *testing.T) *notifDebugger {
	t.Helper()
	req := &libseccomp.ScmpNotifReq{Pid: uint32(os.Getpid())}
	return newNotifDebugger(req, uint32(os.Getpid()), 64)
}

func TestReadBytesReadsOwnMemory(t *testing.T) {
	d := selfDebugger(t)

	payload := []byte("hello, tracee\x00trailing")
	ptr := uint64(uintptr(unsafe.Pointer(&payload[0])))

	got, err := d.ReadBytes(ptr, len("hello, tracee"))
	require.NoError(t, err)
	require.Equal(t, "hello, tracee", string(got))
}

func TestReadStringStopsAtNUL(t *testing.T) {
	d := selfDebugger(t)

	payload := []byte("argument\x00garbage-after-nul")
	ptr := uint64(uintptr(unsafe.Pointer(&payload[0])))

	got, err := d.ReadString(ptr)
	require.NoError(t, err)
	require.Equal(t, "argument", got)
}

func TestReadBytesNullPointerFaults(t *testing.T) {
	d := selfDebugger(t)
	_, err := d.ReadBytes(0, 8)
	require.Error(t, err)
}

func TestArgAndUArgReadRequestRegisters(t *testing.T) {
	req := &libseccomp.ScmpNotifReq{Pid: 123}
	req.Data.Args[0] = ^uint64(0) // -1 as unsigned
	d := newNotifDebugger(req, 123, 64)

	require.Equal(t, int64(-1), d.Arg(0))
	require.Equal(t, ^uint64(0), d.UArg(0))
	require.Equal(t, uint32(123), d.Tid())
	require.Equal(t, uint32(123), d.Pid())
}
