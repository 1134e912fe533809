// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package execute

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// Documented exit codes for run outcomes that did not come from the
// harness itself.
const (
	ExitInterrupted = 130 // SIGINT
	ExitTerminated  = 143 // SIGTERM
	ExitTimeout     = 3   // infra-enforced deadline
	ExitInfra       = 2   // orchestration failure or budget breach
)

// SignalToExitCode maps a forwarded signal to its documented exit
// code. Returns 0 for signals without a mapping.
func SignalToExitCode(sig os.Signal) int {
	switch sig {
	case unix.SIGINT:
		return ExitInterrupted
	case unix.SIGTERM:
		return ExitTerminated
	}
	return 0
}

// MapExitCode folds the raw process status and any forwarded signal
// into run exit semantics. A forwarded signal wins over whatever the
// process reported, since the operator's intent is what the run record
// should show.
func MapExitCode(rawExitCode int, exitSignal os.Signal, forwarded os.Signal) int {
	if forwarded != nil {
		if mapped := SignalToExitCode(forwarded); mapped != 0 {
			return mapped
		}
	}
	if rawExitCode == 0 {
		return 0
	}
	if exitSignal != nil {
		if mapped := SignalToExitCode(exitSignal); mapped != 0 {
			return mapped
		}
	}
	return 1
}

// Forwarder receives demultiplexed signals for one child process.
type Forwarder interface {
	ForwardSignal(sig os.Signal)
}

// SignalCoordinator is the process-global SIGINT/SIGTERM
// demultiplexer. While any forwarder is registered, signals go to the
// forwarders instead of killing the parent; a finalize critical
// section can additionally mask SIGTERM so a run record is never left
// without its finalize event.
type SignalCoordinator struct {
	mu              sync.Mutex
	forwarders      map[Forwarder]bool
	sigtermMaskers  int
	notifyInstalled bool
	signals         chan os.Signal
	stop            chan struct{}
}

var (
	coordinatorOnce sync.Once
	coordinator     *SignalCoordinator
)

// Coordinator returns the process-global signal coordinator.
func Coordinator() *SignalCoordinator {
	coordinatorOnce.Do(func() {
		coordinator = &SignalCoordinator{forwarders: map[Forwarder]bool{}}
	})
	return coordinator
}

// Register adds a forwarder and installs the signal handler on first
// use. The returned function unregisters.
func (c *SignalCoordinator) Register(forwarder Forwarder) func() {
	c.mu.Lock()
	c.forwarders[forwarder] = true
	c.ensureInstalledLocked()
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.forwarders, forwarder)
		c.maybeUninstallLocked()
		c.mu.Unlock()
	}
}

// MaskSIGTERM suppresses SIGTERM delivery for the duration of a
// critical section. The returned function lifts the mask.
func (c *SignalCoordinator) MaskSIGTERM() func() {
	c.mu.Lock()
	c.sigtermMaskers++
	c.ensureInstalledLocked()
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.sigtermMaskers--
		c.maybeUninstallLocked()
		c.mu.Unlock()
	}
}

func (c *SignalCoordinator) ensureInstalledLocked() {
	if c.notifyInstalled {
		return
	}
	c.signals = make(chan os.Signal, 4)
	c.stop = make(chan struct{})
	signal.Notify(c.signals, unix.SIGINT, unix.SIGTERM)
	c.notifyInstalled = true
	go c.dispatch(c.signals, c.stop)
}

func (c *SignalCoordinator) maybeUninstallLocked() {
	if !c.notifyInstalled {
		return
	}
	if len(c.forwarders) > 0 || c.sigtermMaskers > 0 {
		return
	}
	signal.Stop(c.signals)
	close(c.stop)
	c.notifyInstalled = false
}

func (c *SignalCoordinator) dispatch(signals chan os.Signal, stop chan struct{}) {
	for {
		select {
		case sig := <-signals:
			c.deliver(sig)
		case <-stop:
			return
		}
	}
}

func (c *SignalCoordinator) deliver(sig os.Signal) {
	c.mu.Lock()
	if sig == unix.SIGTERM && c.sigtermMaskers > 0 {
		c.mu.Unlock()
		return
	}
	forwarders := make([]Forwarder, 0, len(c.forwarders))
	for forwarder := range c.forwarders {
		forwarders = append(forwarders, forwarder)
	}
	c.mu.Unlock()

	if len(forwarders) == 0 {
		// No active run. Restore default semantics and re-raise so
		// the process dies the way the operator asked.
		if usig, ok := sig.(unix.Signal); ok {
			signal.Reset(sig)
			unix.Kill(unix.Getpid(), usig)
		}
		return
	}
	for _, forwarder := range forwarders {
		forwarder.ForwardSignal(sig)
	}
}

// signalProcessGroup delivers a signal to the child's process group.
// The child may have already exited; ESRCH is an expected race.
func signalProcessGroup(pid int, sig unix.Signal) {
	if pid <= 0 {
		return
	}
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return
	}
	unix.Kill(-pgid, sig)
}
