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
	"testing"

	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/stretchr/testify/require"

	"github.com/dmoj-sandbox/cptbox-go/dispatch"
)

func TestNewTracerStartsEmpty(t *testing.T) {
	tr := NewTracer(nil)
	require.Equal(t, 0, tr.Len())
}

func TestDetachOnUnknownFdIsNoop(t *testing.T) {
	tr := NewTracer(nil)
	require.NotPanics(t, func() { tr.Detach(libseccomp.ScmpFd(99)) })
	require.Equal(t, 0, tr.Len())
}

func TestAttachRegistersSessionSynchronously(t *testing.T) {
	tr := NewTracer(nil)
	s := tr.Attach(libseccomp.ScmpFd(-1), 42, 64, dispatch.Table{})
	require.NotNil(t, s)
	require.Equal(t, uint32(42), s.Tgid)
}
