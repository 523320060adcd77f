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
	"sync"
	"syscall"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sirupsen/logrus"

	"github.com/dmoj-sandbox/cptbox-go/dispatch"
)

// Session runs one tracee's seccomp-notify loop against a dispatch.Table,
// analogous to sysbox-fs's per-pid entry in seccompSessionMap and the
// goroutine connHandler spawns per accepted connection.
type Session struct {
	Fd     libseccomp.ScmpFd
	Tgid   uint32
	Bits   int
	Table  dispatch.Table
	Log    *logrus.Logger

	mu      sync.Mutex
	closed  bool
}

// NewSession builds a Session for a tracee whose seccomp-notify fd is fd,
// thread-group id tgid, pointer width bits (32 or 64), dispatched through
// table.
func NewSession(fd libseccomp.ScmpFd, tgid uint32, bits int, table dispatch.Table, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{Fd: fd, Tgid: tgid, Bits: bits, Table: table, Log: log}
}

// Run processes notifications on s.Fd until a receive or respond fails. If
// Close was called before a receive failure, Run returns nil; Close by
// itself does not interrupt a pending receive. It is meant to be run in its own goroutine, one per tracee, mirroring
// sysbox-fs's one-goroutine-per-connection connHandler.
func (s *Session) Run() error {
	for {
		req, err := libseccomp.NotifReceive(s.Fd)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.Log.Warnf("seccomp-notify receive failed on fd %d (tgid %d): %v", s.Fd, s.Tgid, err)
			return err
		}

		resp := s.handle(req)

		if err := libseccomp.NotifRespond(s.Fd, resp); err != nil {
			if err == syscall.EINTR {
				continue
			}
			s.Log.Warnf("seccomp-notify respond failed on fd %d (tgid %d): %v", s.Fd, s.Tgid, err)
			return err
		}
	}
}

// Close marks the session closed, so a subsequent receive error (the kernel
// closing the notify fd when the tracee exits) is treated as a clean
// shutdown rather than a fault.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// handle dispatches one notification and builds its response. The TOCTOU
// re-check is performed last, right before the caller sends the response:
// memory read during dispatch happened while the tracee
// could have raced ahead (seccomp-notify blocks the tracee on its own
// syscall, but a concurrent second thread sharing the address space could
// still have mutated the bytes this decision was based on).
func (s *Session) handle(req *libseccomp.ScmpNotifReq) *libseccomp.ScmpNotifResp {
	d := newNotifDebugger(req, s.Tgid, s.Bits)

	h, ok := s.Table.Lookup(uintptr(req.Data.Syscall))
	if !ok {
		s.Log.Warnf("no dispatch entry for syscall %d (tgid %d); denying", req.Data.Syscall, s.Tgid)
		return errorResponse(req.Id, syscall.EPERM)
	}

	decision := h.Handle(d)

	if d.onReturn != nil {
		d.onReturn()
	}

	if err := libseccomp.NotifIdValid(s.Fd, req.Id); err != nil {
		s.Log.Warnf("TOCTOU check failed on fd %d (tgid %d): notification %d no longer valid: %v", s.Fd, s.Tgid, req.Id, err)
		return errorResponse(req.Id, syscall.EINVAL)
	}

	if !d.suppressed {
		return &libseccomp.ScmpNotifResp{
			Id:    req.Id,
			Flags: libseccomp.NotifRespFlagContinue,
		}
	}

	if !decision.Admit {
		s.Log.Debugf("denied syscall %d (tgid %d) with %s", req.Data.Syscall, s.Tgid, decision.Errno)
	}
	if d.result < 0 {
		return &libseccomp.ScmpNotifResp{
			Id:    req.Id,
			Error: int32(-d.result),
		}
	}
	return &libseccomp.ScmpNotifResp{
		Id:  req.Id,
		Val: d.result,
	}
}

func errorResponse(id uint64, errno syscall.Errno) *libseccomp.ScmpNotifResp {
	return &libseccomp.ScmpNotifResp{
		Id:    id,
		Error: int32(errno),
	}
}
