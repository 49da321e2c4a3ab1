// Package cliinvoker spawns the coder CLI as a streaming subprocess,
// tracks its pid for best-effort cancellation, and trips a circuit breaker
// when the binary repeatedly fails to spawn. A run that starts and exits
// non-zero is reported through Result and does not count as a failure.
package cliinvoker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Result is what Run returns once the subprocess exits.
type Result struct {
	ExitCode int
	PID      int
}

// LineCallback receives one line of subprocess output at a time.
type LineCallback func(line string)

// Invoker spawns the coder CLI and tracks live child processes by job id so
// the scheduler's cancel path can terminate them.
type Invoker struct {
	bin     string
	model   string
	mu      sync.Mutex
	procs   map[int64]*os.Process
	breaker *gobreaker.CircuitBreaker
}

func New(bin, model string) *Invoker {
	inv := &Invoker{
		bin:   bin,
		model: model,
		procs: make(map[int64]*os.Process),
	}
	inv.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cliinvoker:" + bin,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return inv
}

// Run spawns the coder CLI with the given args/cwd/env, streaming stdout and
// stderr line-by-line to the callbacks, and registers the child's pid under
// jobID for the duration of the call. Spawn failures (including an open
// circuit) are returned as an error, never panicked.
func (inv *Invoker) Run(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr LineCallback) (Result, error) {
	res, err := inv.breaker.Execute(func() (interface{}, error) {
		return inv.run(ctx, jobID, args, cwd, env, onStdout, onStderr)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Result{}, fmt.Errorf("coder cli circuit open: %w", err)
		}
		return Result{}, err
	}
	return res.(Result), nil
}

func (inv *Invoker) run(ctx context.Context, jobID int64, args []string, cwd string, env []string, onStdout, onStderr LineCallback) (Result, error) {
	cmd := exec.CommandContext(ctx, inv.bin, args...)
	cmd.Dir = cwd
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("wiring stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("wiring stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting coder cli: %w", err)
	}

	inv.register(jobID, cmd.Process)
	defer inv.unregister(jobID)

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, onStdout)
	go streamLines(&wg, stderr, onStderr)
	wg.Wait()

	err = cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{PID: cmd.Process.Pid}, fmt.Errorf("running coder cli: %w", err)
		}
	}

	return Result{ExitCode: exitCode, PID: cmd.Process.Pid}, nil
}

func streamLines(wg *sync.WaitGroup, r io.Reader, cb LineCallback) {
	defer wg.Done()
	if cb == nil {
		io.Copy(io.Discard, r) //nolint:errcheck
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		cb(scanner.Text())
	}
}

func (inv *Invoker) register(jobID int64, p *os.Process) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.procs[jobID] = p
}

func (inv *Invoker) unregister(jobID int64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.procs, jobID)
}

// Cancel sends a best-effort termination signal to the live child process
// registered for jobID, if any. Returns false if no process is registered
// (already exited, or never started).
func (inv *Invoker) Cancel(jobID int64) bool {
	inv.mu.Lock()
	p, ok := inv.procs[jobID]
	inv.mu.Unlock()
	if !ok {
		return false
	}
	return p.Kill() == nil
}
