//go:build linux && amd64

// Package sandbox wires every component into the two jail profiles a
// caller actually needs (one for a submission's own runtime process, one
// for its compiler invocation), analogous to sysbox-fs's thin top-level
// service wrappers (e.g. fuse.NewFuseServerService) that hold every
// sub-service and expose a small constructor-time Setup surface.
package sandbox

import (
	libseccomp "github.com/seccomp/libseccomp-golang"
	"github.com/sirupsen/logrus"

	"github.com/dmoj-sandbox/cptbox-go/access"
	"github.com/dmoj-sandbox/cptbox-go/config"
	"github.com/dmoj-sandbox/cptbox-go/dispatch"
	"github.com/dmoj-sandbox/cptbox-go/policy"
	"github.com/dmoj-sandbox/cptbox-go/tracer"
)

// Mode selects which dispatch table a Jail runs: Runtime is the restrictive
// table a submission's own process runs under, Compile is the permissive
// table its compiler invocation runs under.
type Mode int

const (
	Runtime Mode = iota
	Compile
)

// Jail is one configured sandbox profile: a compiled read/write policy, the
// access checker built on them, and the dispatch table a tracer attaches
// tracees to.
type Jail struct {
	Checker *access.Checker
	Table   dispatch.Table
}

// New builds a Jail from a parsed configuration and a mode, compiling its
// read/write rule lists into the Policy Tree pair the selected dispatch
// table (restrictive for Runtime, permissive for Compile) checks against.
func New(cfg *config.JailConfig, mode Mode, log *logrus.Logger) *Jail {
	if log == nil {
		log = logrus.StandardLogger()
	}

	checker := access.NewChecker(
		policy.Compile(cfg.ReadRules),
		policy.Compile(cfg.WriteRules),
		log,
	)

	var table dispatch.Table
	switch mode {
	case Compile:
		table = dispatch.CompileTable(checker)
	default:
		table = dispatch.RuntimeTable(checker)
	}

	return &Jail{Checker: checker, Table: table}
}

// Sandbox owns a Tracer and attaches tracees to the jail profile matching
// their role.
type Sandbox struct {
	Tracer *tracer.Tracer
	Log    *logrus.Logger
}

// NewSandbox builds a Sandbox ready to attach tracees.
func NewSandbox(log *logrus.Logger) *Sandbox {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sandbox{Tracer: tracer.NewTracer(log), Log: log}
}

// Attach services a tracee's seccomp-notify fd under the given jail,
// returning the tracer.Session driving it. bits is the tracee's pointer
// width (32 or 64).
func (s *Sandbox) Attach(fd libseccomp.ScmpFd, tgid uint32, bits int, jail *Jail) *tracer.Session {
	return s.Tracer.Attach(fd, tgid, bits, jail.Table)
}

// Shutdown detaches every live tracee.
func (s *Sandbox) Shutdown() {
	s.Tracer.DetachAll()
}
