package worker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxLineSize bounds a single output line. Longer lines are reported as an
// ErrorEvent and skipped; the lines after them are still delivered.
const MaxLineSize = 1024 * 1024

// DefaultEventBuffer is the default capacity of the event channel.
const DefaultEventBuffer = 256

// Command describes how to launch the backend.
type Command struct {
	// Path is the resolved executable.
	Path string
	// Args are passed after the executable name.
	Args []string
	// Env is appended to the host environment.
	Env []string
	// Dir is the working directory; empty means the host's.
	Dir string
}

// Handle is exclusive ownership of one running process.
type Handle interface {
	// ID is unique per spawn.
	ID() string
	PID() int
	StartedAt() time.Time
	// Kill terminates the process. Killing a process that already exited
	// succeeds.
	Kill() error
}

// Spawner starts processes and returns their handle and event stream.
// The stream ends with a Terminated event and is then closed.
type Spawner interface {
	Spawn(cmd Command) (Handle, <-chan Event, error)
}

// ExecSpawner spawns real OS processes with os/exec.
type ExecSpawner struct {
	// StopTimeout is the grace period between SIGTERM and SIGKILL in Kill.
	// Zero kills immediately.
	StopTimeout time.Duration
	// EventBuffer is the event channel capacity (DefaultEventBuffer if zero).
	EventBuffer int
}

// process is the Handle returned by ExecSpawner.
type process struct {
	id          string
	cmd         *exec.Cmd
	startedAt   time.Time
	stopTimeout time.Duration
	done        chan struct{}
}

// Spawn starts cmd in its own process group with stdin attached to the null
// device and stdout/stderr piped into the event stream.
func (s *ExecSpawner) Spawn(c Command) (Handle, <-chan Event, error) {
	if c.Path == "" {
		return nil, nil, errors.New("spawn: empty executable path")
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, nil, err
	}

	p := &process{
		id:          uuid.NewString(),
		cmd:         cmd,
		startedAt:   time.Now(),
		stopTimeout: s.StopTimeout,
		done:        make(chan struct{}),
	}

	size := s.EventBuffer
	if size <= 0 {
		size = DefaultEventBuffer
	}
	events := make(chan Event, size)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readLines(stdout, events, func(b []byte) Event { return StdoutLine{Line: b} })
	}()
	go func() {
		defer readers.Done()
		readLines(stderr, events, func(b []byte) Event { return StderrLine{Line: b} })
	}()

	go p.wait(&readers, events)

	slog.Debug("worker spawned", "path", c.Path, "pid", cmd.Process.Pid, "run_id", p.id)
	return p, events, nil
}

// readLines forwards each line of r as an event.
func readLines(r io.Reader, events chan<- Event, wrap func([]byte) Event) {
	scanLines(r, MaxLineSize, events, wrap)
}

// scanLines emits one event per line. A line longer than maxLine is reported
// and skipped, and scanning resumes after its newline.
func scanLines(r io.Reader, maxLine int, events chan<- Event, wrap func([]byte) Event) {
	br := bufio.NewReader(r)
	for {
		scanner := bufio.NewScanner(br)
		scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			events <- wrap(line)
		}
		err := scanner.Err()
		switch {
		case err == nil, errors.Is(err, os.ErrClosed):
			return
		case errors.Is(err, bufio.ErrTooLong):
			events <- ErrorEvent{Message: fmt.Sprintf("read output: line exceeds %d bytes, skipped", maxLine)}
			if !skipLine(br) {
				return
			}
		default:
			events <- ErrorEvent{Message: fmt.Sprintf("read output: %v", err)}
			// Keep the pipe drained so the process never blocks on a full buffer.
			_, _ = io.Copy(io.Discard, br)
			return
		}
	}
}

// skipLine discards input up to and including the next newline. It reports
// false when the stream ended first.
func skipLine(br *bufio.Reader) bool {
	for {
		_, err := br.ReadSlice('\n')
		if err == nil {
			return true
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return false
		}
	}
}

// wait collects the exit status once both pipes hit EOF, emits Terminated and
// closes the stream.
func (p *process) wait(readers *sync.WaitGroup, events chan<- Event) {
	readers.Wait()
	err := p.cmd.Wait()
	close(p.done)

	term := Terminated{}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		term.Code = ExitCode(0)
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			term.Code = ExitCode(code)
		}
		term.Signal = exitSignal(exitErr.ProcessState)
	default:
		events <- ErrorEvent{Message: fmt.Sprintf("wait: %v", err)}
	}

	events <- term
	close(events)
}

func (p *process) ID() string           { return p.id }
func (p *process) PID() int             { return p.cmd.Process.Pid }
func (p *process) StartedAt() time.Time { return p.startedAt }

// Kill sends SIGTERM to the process group, waits up to the stop timeout and
// then sends SIGKILL. It does not wait for the process to be reaped after
// SIGKILL; the event stream reports that.
func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if p.stopTimeout > 0 {
		err := terminate(p.cmd.Process)
		if err == nil {
			select {
			case <-p.done:
				return nil
			case <-time.After(p.stopTimeout):
				slog.Debug("worker did not exit gracefully, sending SIGKILL", "timeout", p.stopTimeout, "run_id", p.id)
			}
		} else if processGone(err) {
			return nil
		}
	}

	if err := forceKill(p.cmd.Process); err != nil && !processGone(err) {
		return err
	}
	return nil
}
