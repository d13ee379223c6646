// Package worker is the OS process layer for the supervised backend. It spawns
// the executable, owns the process handle and turns the process's output and
// exit into a stream of Events.
package worker

import (
	"fmt"
	"strconv"
)

// Event is one lifecycle or output event from a spawned process.
// The set of implementations is closed: StdoutLine, StderrLine, ErrorEvent
// and Terminated.
type Event interface {
	isEvent()
}

// StdoutLine is one line the process wrote to standard output.
type StdoutLine struct {
	Line []byte
}

// StderrLine is one line the process wrote to standard error.
type StderrLine struct {
	Line []byte
}

// ErrorEvent reports a failure in the process layer while the stream is open,
// such as a pipe read error or an oversized line.
type ErrorEvent struct {
	Message string
}

// Terminated is the final event of every stream.
type Terminated struct {
	// Code is the exit code, or nil when the process was killed by a signal
	// or its status could not be collected.
	Code *int
	// Signal names the terminating signal, if any.
	Signal string
}

func (StdoutLine) isEvent() {}
func (StderrLine) isEvent() {}
func (ErrorEvent) isEvent() {}
func (Terminated) isEvent() {}

// CodeString renders the exit code the way status output shows it.
func (t Terminated) CodeString() string {
	if t.Code == nil {
		return "none"
	}
	return strconv.Itoa(*t.Code)
}

func (t Terminated) String() string {
	if t.Signal != "" {
		return fmt.Sprintf("terminated by signal %s", t.Signal)
	}
	return "exited with code " + t.CodeString()
}

// ExitCode is a helper for building Terminated values.
func ExitCode(code int) *int {
	return &code
}
