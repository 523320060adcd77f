//go:build linux && amd64

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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/dmoj-sandbox/cptbox-go/config"
	"github.com/dmoj-sandbox/cptbox-go/pkg/sandbox"
)

const usage string = `sandboxd

sandboxd is a daemon that services seccomp-notify syscall interception for
judge submission sandboxes, admitting or denying filesystem access per a
configured jail policy.
`

var version string // set at build time

// exitHandler mirrors sysbox-fs's cmd/sysbox-fs/main.go exitHandler: it
// waits on a signal, logs and optionally dumps a stack trace for the
// signals that suggest a crash, tears down every attached tracee, stops any
// running profiler, and exits.
func exitHandler(signalChan chan os.Signal, sb *sandbox.Sandbox, prof interface{ Stop() }) {
	var printStack bool

	s := <-signalChan
	logrus.Warnf("sandboxd caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	switch s {
	case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGSEGV:
		printStack = true
	}

	if printStack {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	sb.Shutdown()

	if prof != nil {
		prof.Stop()
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !cpuProfOn && !memProfOn {
		return nil, nil
	}

	if cpuProfOn {
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
	}
	return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook), nil
}

func setupLogging(ctx *cli.Context) error {
	if path := ctx.GlobalString("log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o666)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", path, err)
		}
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(os.Stderr)
	}

	switch ctx.GlobalString("log-level") {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "sandboxd"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "/etc/sandboxd/jail.json",
			Usage: "path to the jail rule-list configuration file",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path, or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log level: debug, info, warning, error, fatal",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	app.Before = setupLogging

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating sandboxd ...")

		cfg, err := config.Load(afero.NewOsFs(), ctx.String("config"))
		if err != nil {
			return fmt.Errorf("loading jail config: %w", err)
		}

		sb := sandbox.NewSandbox(logrus.StandardLogger())

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, sb, prof)

		runtimeJail := sandbox.New(cfg, sandbox.Runtime, logrus.StandardLogger())
		compileJail := sandbox.New(cfg, sandbox.Compile, logrus.StandardLogger())
		logrus.Infof("jails compiled: runtime has %d dispatch entries, compile has %d", len(runtimeJail.Table), len(compileJail.Table))

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("Ready ...")

		// sandboxd's own attach loop is driven by whatever launches and
		// traces submissions (an external transport collaborator this daemon
		// only services); here it just blocks until signalled.
		select {}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
