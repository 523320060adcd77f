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

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sirupsen/logrus"

	"github.com/dmoj-sandbox/cptbox-go/dispatch"
)

// Tracer owns every live tracee's Session, ported from sysbox-fs's
// syscallTracer and its seccompSessionMap/seccompSessionMu pair. Installing
// the seccomp-notify filter and launching the tracee are out of this
// module's scope, which only services an already-established fd; a caller
// that has already obtained a tracee's seccomp-notify fd (however it
// installed the BPF filter) hands it to Attach.
type Tracer struct {
	Log *logrus.Logger

	mu       sync.Mutex
	sessions map[libseccomp.ScmpFd]*Session
}

// NewTracer builds an empty Tracer.
func NewTracer(log *logrus.Logger) *Tracer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracer{Log: log, sessions: make(map[libseccomp.ScmpFd]*Session)}
}

// Attach registers a tracee's seccomp-notify fd and starts servicing its
// notifications in a new goroutine, dispatched through table. It returns
// once the session is registered; the servicing loop runs until receiving
// or responding on fd fails (e.g. the tracee exits and the fd is closed).
func (t *Tracer) Attach(fd libseccomp.ScmpFd, tgid uint32, bits int, table dispatch.Table) *Session {
	s := NewSession(fd, tgid, bits, table, t.Log)

	t.mu.Lock()
	t.sessions[fd] = s
	t.mu.Unlock()

	go func() {
		if err := s.Run(); err != nil {
			t.Log.Debugf("tracer: session for fd %d (tgid %d) ended: %v", fd, tgid, err)
		}
		t.mu.Lock()
		delete(t.sessions, fd)
		t.mu.Unlock()
	}()

	return s
}

// Detach removes a tracee's session from the tracer and marks it closed, so
// its next receive failure ends the loop cleanly. It does not close fd or
// interrupt the loop: notifications that arrive before that failure are
// still serviced.
func (t *Tracer) Detach(fd libseccomp.ScmpFd) {
	t.mu.Lock()
	s, ok := t.sessions[fd]
	delete(t.sessions, fd)
	t.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len reports how many tracees are currently attached.
func (t *Tracer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// DetachAll detaches every currently attached tracee, as Detach does.
func (t *Tracer) DetachAll() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for fd, s := range t.sessions {
		sessions = append(sessions, s)
		delete(t.sessions, fd)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
